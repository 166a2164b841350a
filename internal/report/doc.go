// Package report выводит итоговый отчёт run.
//
// Отчёт печатается таблицей (сводка + упавшие item'ы) или JSON,
// а при заданном пути сохраняется в файл атомарно: временный файл
// в той же директории, затем rename.
package report

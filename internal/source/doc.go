// Package source читает WorkItem'ы из TSV.
//
// Формат строки: <id>\t<text>. Если второй колонки нет, текстом
// становится "<id>." (слово произносится как предложение).
// Пустые строки пропускаются, id проверяются на безопасность и уникальность.
package source

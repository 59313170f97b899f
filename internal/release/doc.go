// Package release содержит Release Gate и публикаторы релизов.
//
// Машина состояний Gate:
//
//	IDLE → EVALUATING → SKIPPED
//	                  ↘ DRAFTING → ATTACHING → PUBLISHED
//	                         ↘          ↘ FAILED
//
// Предикат по умолчанию: ref начинается с "refs/tags/v". Ложный предикат
// даёт SKIPPED и не является ошибкой. Перед прикреплением Gate читает
// все артефакты; если хотя бы одного нет, черновик остаётся на месте,
// а Gate переходит в FAILED. Опубликованный релиз остаётся черновиком.
//
// Публикаторы:
//   - MemoryPublisher — в памяти процесса (CLI, тесты)
//   - GitHubPublisher — GitHub Releases API
//   - repo.ReleaseRepo — PostgreSQL
package release

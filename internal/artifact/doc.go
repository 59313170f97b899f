// Package artifact содержит Artifact Store: write-once хранилище
// именованных blob'ов, ограниченное одним run.
//
// Ключ артефакта — (метка экземпляра, имя). Put атомарно вставляет
// артефакт только если ключа ещё нет; Get видит только полностью
// записанные артефакты.
//
// Реализации:
//   - MemoryStore — sync.Map с LoadOrStore
//   - SQLiteStore — таблица с первичным ключом (run_id, label, name)
package artifact

package artifact

import "errors"

var (
	// ErrNotFound — артефакт не найден (ещё не опубликован или не существует).
	ErrNotFound = errors.New("artifact not found")

	// ErrDuplicateArtifact — артефакт с таким ключом уже опубликован.
	ErrDuplicateArtifact = errors.New("duplicate artifact")

	// ErrInvalidKey — пустая метка или имя.
	ErrInvalidKey = errors.New("invalid artifact key")
)

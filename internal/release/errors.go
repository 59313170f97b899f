package release

import "errors"

var (
	// ErrReleaseExists — релиз с таким тегом уже существует.
	ErrReleaseExists = errors.New("release already exists")

	// ErrReleaseNotFound — релиз с таким тегом не найден.
	ErrReleaseNotFound = errors.New("release not found")

	// ErrMissingAsset — артефакт, заявленный для релиза, не найден.
	ErrMissingAsset = errors.New("release asset missing")

	// ErrNoAssets — релиз не объявил ни одного артефакта.
	ErrNoAssets = errors.New("release declares no assets")

	// ErrInvalidTag — тег не удалось вывести из ref.
	ErrInvalidTag = errors.New("invalid release tag")
)

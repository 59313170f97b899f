package domain

import "strings"

// Префиксы git refs.
const (
	RefTagsPrefix  = "refs/tags/"
	RefHeadsPrefix = "refs/heads/"
)

// Trigger — контекст внешнего события, запустившего run.
//
// Примеры:
//
//	{Event: "push", Ref: "refs/heads/master"}
//	{Event: "tag",  Ref: "refs/tags/v1.2.3"}
type Trigger struct {
	// Event — тип события: push, pull_request, tag.
	Event EventKind `json:"event_kind" yaml:"event_kind"`

	// Ref — git ref, на котором запущен pipeline.
	Ref string `json:"ref" yaml:"ref"`
}

// IsTag возвращает true, если ref указывает на тег.
func (t Trigger) IsTag() bool {
	return strings.HasPrefix(t.Ref, RefTagsPrefix)
}

// TagName возвращает имя тега без префикса refs/tags/.
// Для не-тегов возвращает пустую строку.
func (t Trigger) TagName() string {
	if !t.IsTag() {
		return ""
	}
	return strings.TrimPrefix(t.Ref, RefTagsPrefix)
}

// ShortRef возвращает ref без refs/heads/ или refs/tags/.
func (t Trigger) ShortRef() string {
	ref := strings.TrimPrefix(t.Ref, RefTagsPrefix)
	return strings.TrimPrefix(ref, RefHeadsPrefix)
}

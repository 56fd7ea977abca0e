package diff

// Entity is one catalog record as decoded from JSON, normally a map[string]any.
// Added and removed entities are carried verbatim and never flattened.
type Entity = any

// Report is the normalized form of a raw diff document.
// Categories are ordered by ascending name.
type Report struct {
	Categories []CategoryDiff `json:"categories" yaml:"categories"`
}

// CategoryDiff holds the added, removed and changed records of one category
// (e.g. "attributes", "families").
type CategoryDiff struct {
	Name    string        `json:"name" yaml:"name"`
	Added   []Entity      `json:"added" yaml:"added"`
	Removed []Entity      `json:"removed" yaml:"removed"`
	Changed []ChangedItem `json:"changed" yaml:"changed"`
}

// ChangedItem is one changed record, identified by its natural key.
// An item with no changes is still a valid result and is kept so that counts
// match the source document.
type ChangedItem struct {
	Identity     string            `json:"identity" yaml:"identity"`
	FieldChanges []FieldChange     `json:"field_changes" yaml:"field_changes"`
	NestedDiffs  []NestedFieldDiff `json:"nested_diffs" yaml:"nested_diffs"`
}

// FieldChange is a leaf value replacement at a dotted path (e.g. "labels.en_US").
type FieldChange struct {
	Path     string `json:"path" yaml:"path"`
	OldValue any    `json:"old_value" yaml:"old_value"`
	NewValue any    `json:"new_value" yaml:"new_value"`
}

// NestedFieldDiff is a set-valued change at a dotted path.
type NestedFieldDiff struct {
	Path    string   `json:"path" yaml:"path"`
	Added   []string `json:"added" yaml:"added"`
	Removed []string `json:"removed" yaml:"removed"`
}

// Category returns the diff of the named category.
func (r *Report) Category(name string) (*CategoryDiff, bool) {
	for i := range r.Categories {
		if r.Categories[i].Name == name {
			return &r.Categories[i], true
		}
	}
	return nil, false
}

// HasChanges reports whether any category has additions, removals or changes.
func (r *Report) HasChanges() bool {
	for _, c := range r.Categories {
		if c.HasChanges() {
			return true
		}
	}
	return false
}

// HasChanges reports whether the category has any modifications.
func (c *CategoryDiff) HasChanges() bool {
	return len(c.Added) > 0 || len(c.Removed) > 0 || len(c.Changed) > 0
}

// TotalChanged returns the count of added + removed + changed records.
func (c *CategoryDiff) TotalChanged() int {
	return len(c.Added) + len(c.Removed) + len(c.Changed)
}

// IsEmpty reports whether the item flattened to nothing.
func (it *ChangedItem) IsEmpty() bool {
	return len(it.FieldChanges) == 0 && len(it.NestedDiffs) == 0
}

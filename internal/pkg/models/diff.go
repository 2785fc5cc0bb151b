package models

// FieldDelta lists what changed for one match since the previous emission.
type FieldDelta struct {
	New    bool     `json:"new,omitempty"`
	Fields []string `json:"fields,omitempty"`
}

// Changed reports whether the given field label changed.
func (d FieldDelta) Changed(field string) bool {
	if d.New {
		return true
	}
	for _, f := range d.Fields {
		if f == field {
			return true
		}
	}
	return false
}

// IndexByKey maps records by identity key. Later records with the same key win.
func IndexByKey(records []MatchRecord) map[MatchKey]MatchRecord {
	out := make(map[MatchKey]MatchRecord, len(records))
	for _, r := range records {
		out[r.Key()] = r
	}
	return out
}

// DiffRecords compares records against the previous emission keyed by MatchKey.
// Only matches that are new or have at least one changed field are returned.
func DiffRecords(previous map[MatchKey]MatchRecord, records []MatchRecord) map[MatchKey]FieldDelta {
	changes := make(map[MatchKey]FieldDelta)
	for _, r := range records {
		key := r.Key()
		old, ok := previous[key]
		if !ok {
			changes[key] = FieldDelta{New: true}
			continue
		}
		oldFields := old.Fields()
		newFields := r.Fields()
		var changed []string
		for _, label := range FieldOrder {
			if oldFields[label] != newFields[label] {
				changed = append(changed, label)
			}
		}
		if len(changed) > 0 {
			changes[key] = FieldDelta{Fields: changed}
		}
	}
	return changes
}

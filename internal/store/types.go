package store

// Row is one dictionary row: a word and its space-separated syllable code.
type Row struct {
	Text string
	Code string
}

// MatchOptions narrows a code match.
type MatchOptions struct {
	// SingleSyllable drops rows whose code has more than one syllable.
	SingleSyllable bool
	// SingleChar drops rows whose text is longer than one character.
	SingleChar bool
	// Limit caps the number of rows; zero means no limit.
	Limit int
}

// Conversion maps a traditional form to its simplified forms. The first
// space-separated form of Simplified is preferred.
type Conversion struct {
	Traditional string
	Simplified  string
}

// SchemaRecord is a schema document kept in the store.
type SchemaRecord struct {
	ID        string
	Name      string
	Document  []byte
	UpdatedAt int64
}

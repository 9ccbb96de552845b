package stremio

// Manifest represents a Stremio addon manifest
type Manifest struct {
	ID          string        `json:"id"`
	Version     string        `json:"version"`
	Name        string        `json:"name"`
	Description string        `json:"description"`
	Types       []string      `json:"types"`
	IDPrefixes  []string      `json:"idPrefixes"`
	Catalogs    []CatalogItem `json:"catalogs"`
	Resources   []string      `json:"resources"`
}

// CatalogItem represents a Stremio manifest catalog item
type CatalogItem struct {
	ID    string       `json:"id"`
	Type  string       `json:"type"`
	Name  string       `json:"name,omitempty"`
	Extra []ExtraField `json:"extra,omitempty"`
}

// ExtraField describes an extra property a catalog accepts.
type ExtraField struct {
	Name       string `json:"name"`
	IsRequired bool   `json:"isRequired,omitempty"`
}

// MetaPreview represents an entry of a Stremio catalog response
type MetaPreview struct {
	ID          string   `json:"id"`
	Type        string   `json:"type"`
	Name        string   `json:"name"`
	Poster      string   `json:"poster,omitempty"`
	Description string   `json:"description,omitempty"`
	ReleaseInfo string   `json:"releaseInfo,omitempty"`
	Genres      []string `json:"genres,omitempty"`
	Website     string   `json:"website,omitempty"`
}

// Metas is the Stremio catalog response body
type Metas struct {
	Metas []MetaPreview `json:"metas"`
}

package domain

// LibraryID identifies one meme collection. Ids are only meaningful inside
// the context that owns the library.
type LibraryID int64

// Library is a join point between names and images within one context.
type Library struct {
	ID         LibraryID `json:"id"`
	Context    string    `json:"context"`
	Names      []string  `json:"names"`
	ImageCount int       `json:"image_count"`
}

// Image is a stored meme. Data keeps its original encoding, animation included.
// Hash is the persisted perceptual hash string.
type Image struct {
	ID        int64     `json:"id"`
	LibraryID LibraryID `json:"library_id"`
	Data      []byte    `json:"-"`
	Hash      string    `json:"hash"`
}

// ImageRef is an image without its payload, used when only hashes matter.
type ImageRef struct {
	ID        int64     `json:"id"`
	LibraryID LibraryID `json:"library_id"`
	Hash      string    `json:"hash"`
	Size      int       `json:"size"`
}

// NameBinding is one (name, context) -> library row.
type NameBinding struct {
	Context   string    `json:"context"`
	Name      string    `json:"name"`
	LibraryID LibraryID `json:"library_id"`
}

// Stats summarizes the store.
type Stats struct {
	Contexts  int   `json:"contexts"`
	Libraries int   `json:"libraries"`
	Names     int   `json:"names"`
	Images    int   `json:"images"`
	Bytes     int64 `json:"bytes"`
}

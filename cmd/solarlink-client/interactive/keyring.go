package interactive

import (
	"github.com/google/uuid"

	"github.com/solarlink/solarlink-go/pkg/persistence"
	"github.com/solarlink/solarlink-go/pkg/secure"
)

// Entry is the credential this central holds for one accessory.
type Entry struct {
	ID     uuid.UUID  `json:"id"`
	Name   string     `json:"name,omitempty"`
	Secret secure.Key `json:"secret"`
}

type keyringDoc struct {
	Accessories map[uuid.UUID]Entry `json:"accessories"`
}

// Keyring stores credentials per accessory in a JSON file.
type Keyring struct {
	file *persistence.File[keyringDoc]
}

// OpenKeyring returns the keyring at path. The file is created on the first
// Store.
func OpenKeyring(path string) *Keyring {
	return &Keyring{file: persistence.NewFile[keyringDoc](path)}
}

// Lookup returns the credential held for accessory.
func (k *Keyring) Lookup(accessory uuid.UUID) (Entry, bool, error) {
	doc, err := k.file.Load()
	if err != nil || doc == nil {
		return Entry{}, false, err
	}
	e, ok := doc.Accessories[accessory]
	return e, ok, nil
}

// Store records the credential for accessory, replacing any previous one.
func (k *Keyring) Store(accessory uuid.UUID, e Entry) error {
	_, _, err := k.file.Update(func(doc *keyringDoc) error {
		if doc.Accessories == nil {
			doc.Accessories = make(map[uuid.UUID]Entry)
		}
		doc.Accessories[accessory] = e
		return nil
	})
	return err
}

// Forget drops the credential for accessory.
func (k *Keyring) Forget(accessory uuid.UUID) error {
	_, _, err := k.file.Update(func(doc *keyringDoc) error {
		delete(doc.Accessories, accessory)
		return nil
	})
	return err
}

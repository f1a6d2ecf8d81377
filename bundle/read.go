package bundle

import (
	"encoding/json"
	"fmt"

	"github.com/marcpage/libernet/blockstore"
	"github.com/marcpage/libernet/blockurl"
	"github.com/marcpage/libernet/codec"
)

// loadRaw fetches and decodes the bundle document named by url, or
// returns (nil, nil) if it isn't available.
func loadRaw(url string, store blockstore.Store) (*Description, error) {
	data, err := codec.Fetch(url, store, false, "")
	if err != nil {
		return nil, err
	}
	if data == nil {
		return nil, nil
	}

	var description Description
	if err := json.Unmarshal(data, &description); err != nil {
		return nil, fmt.Errorf("bundle: decoding %s: %w", url, err)
	}

	return &description, nil
}

// Inflate loads the bundle named by url and recursively merges in every
// sub-bundle's files. If enforce is true, any missing (sub-)bundle causes
// Inflate to return (nil, nil) rather than a partial result.
func Inflate(url string, store blockstore.Store, enforce bool) (*Description, error) {
	bundle, err := loadRaw(url, store)
	if err != nil {
		return nil, err
	}

	if bundle == nil {
		if enforce {
			return nil, nil
		}
		bundle = &Description{Files: map[string]FileDescription{}}
	}

	if bundle.Files == nil {
		bundle.Files = map[string]FileDescription{}
	}

	for _, subURL := range bundle.Bundles {
		sub, err := Inflate(subURL, store, enforce)
		if err != nil {
			return nil, err
		}

		if sub != nil {
			for name, desc := range sub.Files {
				bundle.Files[name] = desc
			}
		} else if enforce {
			return nil, nil
		}
	}

	return bundle, nil
}

// MissingBlocks returns the addresses of every block needed to fully
// restore the bundle named by url that isn't currently available in
// store: the bundle document itself if that's missing, else each file
// part that's missing, recursing into sub-bundles.
func MissingBlocks(url string, store blockstore.Store) ([]string, error) {
	bundle, err := loadRaw(url, store)
	if err != nil {
		return nil, err
	}

	if bundle == nil {
		addr, addrErr := blockurl.Address(url)
		if addrErr != nil {
			return nil, addrErr
		}
		return []string{addr}, nil
	}

	var missing []string

	for _, file := range bundle.Files {
		for _, part := range file.Parts {
			present, err := blockExists(part.URL, store)
			if err != nil {
				return nil, err
			}
			if !present {
				addr, err := blockurl.Address(part.URL)
				if err != nil {
					return nil, err
				}
				missing = append(missing, addr)
			}
		}
	}

	for _, subURL := range bundle.Bundles {
		subMissing, err := MissingBlocks(subURL, store)
		if err != nil {
			return nil, err
		}
		missing = append(missing, subMissing...)
	}

	return missing, nil
}

func blockExists(url string, store blockstore.Store) (bool, error) {
	addr, err := blockurl.Address(url)
	if err != nil {
		return false, err
	}
	return store.Contains(addr)
}

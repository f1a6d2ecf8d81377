package bundle

import (
	"fmt"
	"sort"

	"github.com/marcpage/libernet/blockstore"
	"github.com/marcpage/libernet/blockurl"
	"github.com/marcpage/libernet/codec"
	"github.com/marcpage/libernet/digest"
)

func errBundleTooBig(size int) error {
	return fmt.Errorf("bundle: root bundle is %d bytes, exceeds MaxBundleSize %d", size, MaxBundleSize)
}

// fileOverhead and perIdentifierOverhead are the same rough per-entry
// JSON overhead estimates the source used to decide, cheaply, whether a
// candidate sub-bundle merge would still fit — the final serialized size
// is always re-measured exactly before anything is written.
var (
	fileOverhead          = len(`{"files":[]}`)
	perIdentifierOverhead = len(`", "`)
	sampleURLLength       = sampleEncryptedURLLength()
)

func sampleEncryptedURLLength() int {
	sample, _ := blockurl.ForEncrypted(digest.Zero, digest.Zero, blockurl.AES256)
	return len(sample)
}

// breakdownBundle splits description into one or more (description, json)
// pairs, the top-level one first, none exceeding MaxBundleSize.
func breakdownBundle(description Description) ([]packedBundle, error) {
	contents, err := serialize(description)
	if err != nil {
		return nil, err
	}

	if len(contents) <= MaxBundleSize {
		return []packedBundle{{description: description, contents: contents}}, nil
	}

	remaining := map[string]FileDescription{}
	for k, v := range description.Files {
		remaining[k] = v
	}

	sortedByParts := sortFilesByPartCountDesc(remaining)

	var subBundles []packedBundle
	for len(remaining) > 0 {
		subFiles, err := findFilesInBundle(remaining, &sortedByParts)
		if err != nil {
			return nil, err
		}

		sub := Description{Files: subFiles}
		subContents, err := serialize(sub)
		if err != nil {
			return nil, err
		}

		subBundles = append(subBundles, packedBundle{description: sub, contents: subContents})
	}

	sort.Slice(subBundles, func(i, j int) bool {
		return len(subBundles[i].contents) < len(subBundles[j].contents)
	})

	main := description
	main.Files = map[string]FileDescription{}
	main.Bundles = []string{}

	mainContents, err := serialize(main)
	if err != nil {
		return nil, err
	}

	firstBundleSize := len(mainContents) + len(subBundles[0].contents) +
		(sampleURLLength+perIdentifierOverhead)*len(subBundles)

	if firstBundleSize < MaxBundleSize {
		merged := subBundles[0]
		subBundles = subBundles[1:]
		main.Files = merged.description.Files
	}

	result := []packedBundle{{description: main}}
	result = append(result, subBundles...)
	return result, nil
}

type packedBundle struct {
	description Description
	contents    []byte
}

// findFilesInBundle removes, from remaining, the maximum prefix of
// sortedByParts (files in descending part-count order) that still fits
// within MaxBundleSize once serialized, and returns that subset.
func findFilesInBundle(remaining map[string]FileDescription, sortedByParts *[]string) (map[string]FileDescription, error) {
	files := *sortedByParts
	low, high := 1, len(files)+1

	var bundleFiles map[string]FileDescription

	for {
		mid := (high + low) / 2
		bundleFiles = map[string]FileDescription{}
		for i := 0; i < mid; i++ {
			bundleFiles[files[i]] = remaining[files[i]]
		}

		encoded, err := serialize(Description{Files: bundleFiles})
		if err != nil {
			return nil, err
		}

		size := fileOverhead + len(encoded)

		if size > MaxBundleSize {
			high = mid
		} else {
			low = mid
		}

		if high-low <= 1 && size <= MaxBundleSize {
			break
		}
	}

	for file := range bundleFiles {
		delete(remaining, file)
	}

	remainingSorted := make([]string, 0, len(files)-len(bundleFiles))
	for _, f := range files {
		if _, taken := bundleFiles[f]; !taken {
			remainingSorted = append(remainingSorted, f)
		}
	}
	*sortedByParts = remainingSorted

	return bundleFiles, nil
}

func sortFilesByPartCountDesc(files map[string]FileDescription) []string {
	names := make([]string, 0, len(files))
	for name := range files {
		names = append(names, name)
	}

	sort.Slice(names, func(i, j int) bool {
		return len(files[names[i]].Parts) > len(files[names[j]].Parts)
	})

	return names
}

// finalizeBundle serializes description, splitting it across sub-bundles
// as needed, stores every block (root and sub-bundles alike) under
// encrypt, and returns every URL written (the root bundle's URL first).
func finalizeBundle(description Description, store blockstore.Store, encrypt codec.Encryption) ([]string, error) {
	packed, err := breakdownBundle(description)
	if err != nil {
		return nil, err
	}

	main := packed[0].description
	rest := packed[1:]

	if main.Bundles == nil {
		main.Bundles = []string{}
	}

	var urls []string

	for _, sub := range rest {
		url, _, err := codec.Store(sub.contents, store, encrypt, nil, 0)
		if err != nil {
			return nil, err
		}
		main.Bundles = append(main.Bundles, url)
	}

	urls = append(urls, main.Bundles...)

	contents, err := serialize(main)
	if err != nil {
		return nil, err
	}

	if len(contents) > MaxBundleSize {
		return nil, errBundleTooBig(len(contents))
	}

	rootURL, _, err := codec.Store(contents, store, encrypt, nil, 0)
	if err != nil {
		return nil, err
	}

	urls = append([]string{rootURL}, urls...)
	return urls, nil
}

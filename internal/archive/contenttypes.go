package archive

import (
	"encoding/xml"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// ContentTypesFile is the OPC manifest at the root of a package.
const ContentTypesFile = "[Content_Types].xml"

// DeltaExtensions are declared in the manifest of every delta package.
var DeltaExtensions = []string{"diff", "bsdiff", "exe", "dll", "pdb", "shasum"}

const deltaContentType = "application/octet"

type contentTypes struct {
	XMLName   xml.Name       `xml:"http://schemas.openxmlformats.org/package/2006/content-types Types"`
	Defaults  []defaultType  `xml:"Default"`
	Overrides []overrideType `xml:"Override"`
}

type defaultType struct {
	Extension   string `xml:"Extension,attr"`
	ContentType string `xml:"ContentType,attr"`
}

type overrideType struct {
	PartName    string `xml:"PartName,attr"`
	ContentType string `xml:"ContentType,attr"`
}

// RegisterDeltaContentTypes adds a Default declaration for each of
// DeltaExtensions that dir's manifest lacks. It returns the extensions
// added. A package without a manifest is left untouched.
func RegisterDeltaContentTypes(dir string) ([]string, error) {
	path := filepath.Join(dir, ContentTypesFile)
	data, err := os.ReadFile(path) //nolint:gosec // path is inside the package tree
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var ct contentTypes
	if err := xml.Unmarshal(data, &ct); err != nil {
		return nil, fmt.Errorf("parse %s: %w", ContentTypesFile, err)
	}

	have := make(map[string]bool, len(ct.Defaults))
	for _, d := range ct.Defaults {
		have[strings.ToLower(d.Extension)] = true
	}

	var added []string
	for _, ext := range DeltaExtensions {
		if have[ext] {
			continue
		}
		ct.Defaults = append(ct.Defaults, defaultType{Extension: ext, ContentType: deltaContentType})
		added = append(added, ext)
	}
	if len(added) == 0 {
		return nil, nil
	}

	out, err := xml.Marshal(ct)
	if err != nil {
		return nil, err
	}
	out = append([]byte(xml.Header), out...)
	if err := os.WriteFile(path, out, 0o644); err != nil { //nolint:gosec // package files are world-readable
		return nil, err
	}
	return added, nil
}

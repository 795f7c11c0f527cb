package hardware

import (
	"errors"
	"fmt"
	"io"

	"gopkg.in/yaml.v3"

	pkgerrors "github.com/hackportal/hackportal-backend/pkg/errors"
)

// InventoryFile is the YAML document accepted by the bulk import command:
//
//	items:
//	  - name: Raspberry Pi 4
//	    item_url: https://example.com/pi4
//	    total_stock: 12
type InventoryFile struct {
	Items []NewItem `yaml:"items"`
}

// ParseInventory decodes an inventory document. Unknown keys are rejected so
// a typo never silently imports an item with zero stock.
func ParseInventory(r io.Reader) ([]NewItem, error) {
	decoder := yaml.NewDecoder(r)
	decoder.KnownFields(true)

	var doc InventoryFile
	if err := decoder.Decode(&doc); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "inventory file is empty")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, fmt.Sprintf("invalid inventory file: %v", err))
	}
	if len(doc.Items) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "inventory file lists no items")
	}
	return doc.Items, nil
}

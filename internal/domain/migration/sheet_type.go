package migration

import "fmt"

// SheetType identifies which record shape a worksheet carries.
type SheetType string

const (
	SheetTypeContract SheetType = "CONTRACT"
	SheetTypeCIF      SheetType = "CIF"
	SheetTypeVolume   SheetType = "VOLUME"
)

var AllSheetTypes = []SheetType{SheetTypeContract, SheetTypeCIF, SheetTypeVolume}

// sheetNames maps the folded worksheet name to its type.
var sheetNames = func() map[string]SheetType {
	names := make(map[string]SheetType, len(AllSheetTypes))
	for _, sheetType := range AllSheetTypes {
		names[headerKey(sheetType.SheetName())] = sheetType
	}
	return names
}()

// SheetTypeForName resolves a worksheet name. Unknown names return ErrUnknownSheet.
func SheetTypeForName(name string) (SheetType, error) {
	sheetType, ok := sheetNames[headerKey(name)]
	if !ok {
		return "", &StructureError{Sheet: name, Err: ErrUnknownSheet}
	}
	return sheetType, nil
}

func ParseSheetType(raw string) (SheetType, error) {
	for _, sheetType := range AllSheetTypes {
		if string(sheetType) == raw {
			return sheetType, nil
		}
	}
	return "", fmt.Errorf("unknown sheet type %q", raw)
}

// SheetName is the canonical worksheet name for the type.
func (t SheetType) SheetName() string {
	switch t {
	case SheetTypeContract:
		return "HDTD"
	case SheetTypeCIF:
		return "CIF"
	case SheetTypeVolume:
		return "TAP"
	default:
		panic(fmt.Sprintf("unhandled sheet type %q", string(t)))
	}
}

func (t SheetType) Columns() []Column {
	switch t {
	case SheetTypeContract:
		return contractColumns
	case SheetTypeCIF:
		return cifColumns
	case SheetTypeVolume:
		return volumeColumns
	default:
		panic(fmt.Sprintf("unhandled sheet type %q", string(t)))
	}
}

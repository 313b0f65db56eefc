// Package module implements the firmware module table: a sorted list of
// target modules with their image base, .text section bounds, and the
// path of the module's .debug file.
//
// The table is stored as a JSON array. Files are parsed through
// github.com/tidwall/jsonc so hand-maintained tables may carry comments
// and trailing commas.
package module

import (
	"debug/elf"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/tidwall/jsonc"

	"github.com/mmr-tortoise/ghidracov/internal/model"
)

// Module describes a single firmware module. The JSON field names match
// the on-disk table format consumed by the import tooling.
type Module struct {
	// Name is the module name, unique within a table.
	Name string `json:"name"`

	// ImageBase is the address the module image is loaded at.
	ImageBase uint64 `json:"img_base"`

	// TextStart is the runtime start address of the .text section
	// (ImageBase plus the section's link-time address).
	TextStart uint64 `json:"text_start"`

	// TextEnd is the runtime end address of the .text section.
	TextEnd uint64 `json:"text_end"`

	// TextSize is the size of the .text section in bytes.
	TextSize uint64 `json:"text_size"`

	// DebugPath is the path of the module's .debug ELF file.
	DebugPath string `json:"debug_path"`
}

// FillTextInfo populates TextStart, TextEnd, and TextSize by reading the
// first .text* section of the module's .debug ELF file. ImageBase must be
// set, since the runtime start address is ImageBase plus the section's
// link-time address.
func (m *Module) FillTextInfo() error {
	if m.ImageBase == 0 {
		return fmt.Errorf("module %s: cannot compute .text start without an image base", m.Name)
	}

	f, err := elf.Open(m.DebugPath)
	if err != nil {
		return fmt.Errorf("module %s: failed to open %s: %w", m.Name, m.DebugPath, err)
	}
	defer f.Close()

	for _, sec := range f.Sections {
		if !strings.HasPrefix(sec.Name, ".text") {
			continue
		}
		m.TextSize = sec.Size
		m.TextStart = m.ImageBase + sec.Addr
		m.TextEnd = m.TextStart + m.TextSize
		return nil
	}
	return fmt.Errorf("module %s: no .text section in %s", m.Name, m.DebugPath)
}

// Table is a collection of modules kept sorted by name.
type Table struct {
	// Modules is the sorted module list. Mutate via Add to keep the
	// ordering and name validation intact.
	Modules []Module
}

// NewTable builds a Table from a module list, validating and sorting it.
func NewTable(modules []Module) (*Table, error) {
	for i := range modules {
		if modules[i].Name == "" {
			return nil, fmt.Errorf("module table: module %d has an empty name", i)
		}
	}
	t := &Table{Modules: modules}
	t.sort()
	return t, nil
}

// Load reads a module table from a JSON file. Comments and trailing
// commas are tolerated (jsonc), matching how hand-edited tables look in
// practice.
func Load(path string) (*Table, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, model.WrapCLIError(model.KindPath,
			fmt.Sprintf("module table not found: %s", path), err)
	}

	var modules []Module
	if err := json.Unmarshal(jsonc.ToJSON(data), &modules); err != nil {
		return nil, fmt.Errorf("failed to parse module table %s: %w", path, err)
	}

	table, err := NewTable(modules)
	if err != nil {
		return nil, fmt.Errorf("invalid module table %s: %w", path, err)
	}
	return table, nil
}

// Save writes the table to a JSON file, pretty-printed and sorted.
func (t *Table) Save(path string) error {
	t.sort()
	data, err := json.MarshalIndent(t.Modules, "", "    ")
	if err != nil {
		return fmt.Errorf("failed to encode module table: %w", err)
	}
	if err := os.WriteFile(path, append(data, '\n'), 0644); err != nil {
		return fmt.Errorf("failed to write module table %s: %w", path, err)
	}
	return nil
}

// Get returns the module with the given name.
func (t *Table) Get(name string) (*Module, error) {
	for i := range t.Modules {
		if t.Modules[i].Name == name {
			return &t.Modules[i], nil
		}
	}
	return nil, fmt.Errorf("module table does not contain module %q", name)
}

// Add inserts a module, keeping the table sorted by name.
func (t *Table) Add(m Module) error {
	if m.Name == "" {
		return fmt.Errorf("module table: module name must not be empty")
	}
	t.Modules = append(t.Modules, m)
	t.sort()
	return nil
}

func (t *Table) sort() {
	sort.Slice(t.Modules, func(i, j int) bool {
		return t.Modules[i].Name < t.Modules[j].Name
	})
}

// Format renders the table in aligned columns with 16-digit hex
// addresses. If onlyNames is non-empty, only the named modules are
// included; withHeader controls the header row.
func (t *Table) Format(onlyNames []string, withHeader bool) string {
	include := func(name string) bool {
		if len(onlyNames) == 0 {
			return true
		}
		for _, n := range onlyNames {
			if n == name {
				return true
			}
		}
		return false
	}

	var b strings.Builder
	if withHeader {
		fmt.Fprintf(&b, "%-32s %-16s %-16s %-16s %6s %s\n",
			"Module Name", "Image Base", ".text Start", ".text End", "Size", "Debug Path")
	}
	for i := range t.Modules {
		m := &t.Modules[i]
		if !include(m.Name) {
			continue
		}
		fmt.Fprintf(&b, "%-32s %s %s %s %06d %s\n",
			m.Name,
			model.FormatAddress(m.ImageBase),
			model.FormatAddress(m.TextStart),
			model.FormatAddress(m.TextEnd),
			m.TextSize,
			m.DebugPath)
	}
	return b.String()
}

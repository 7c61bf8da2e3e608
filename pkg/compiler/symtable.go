package compiler

import (
	"fmt"
	"strings"
)

// SymbolTable maps the variables of one function to dense 1-based frame
// slots, in the order they are first referenced. The language has no
// declarations, so the first reference creates the slot.
type SymbolTable struct {
	slots map[string]int
	names []string // names[i] holds slot i+1
}

func NewSymbolTable() *SymbolTable {
	return &SymbolTable{slots: make(map[string]int)}
}

// Lookup returns the slot of name and whether it has been referenced yet.
func (s *SymbolTable) Lookup(name string) (int, bool) {
	slot, ok := s.slots[name]
	return slot, ok
}

// Slot returns the slot of name, assigning the next free one on first use.
func (s *SymbolTable) Slot(name string) int {
	if slot, ok := s.slots[name]; ok {
		return slot
	}
	s.names = append(s.names, name)
	slot := len(s.names)
	s.slots[name] = slot
	return slot
}

// Len is the number of slots handed out so far.
func (s *SymbolTable) Len() int {
	return len(s.names)
}

// Names returns the variable names in slot order.
func (s *SymbolTable) Names() []string {
	out := make([]string, len(s.names))
	copy(out, s.names)
	return out
}

// String returns the table in slot order.
func (s *SymbolTable) String() string {
	if len(s.names) == 0 {
		return "Locals: (empty)\n"
	}
	var sb strings.Builder
	sb.WriteString("Locals:\n")
	for i, name := range s.names {
		fmt.Fprintf(&sb, "  %-20s  Slot: %d (Offset: -%d)\n", name, i+1, (i+1)*8)
	}
	return sb.String()
}

// LabelAllocator hands out ids for control constructs. Each construct kind
// counts independently; ids never repeat within one compilation unit.
type LabelAllocator struct {
	ifs    int
	whiles int
	fors   int
}

// NextIf returns a fresh id for an if or if/else.
func (a *LabelAllocator) NextIf() int {
	id := a.ifs
	a.ifs++
	return id
}

// NextWhile returns a fresh id for a while loop.
func (a *LabelAllocator) NextWhile() int {
	id := a.whiles
	a.whiles++
	return id
}

// NextFor returns a fresh id for a for loop.
func (a *LabelAllocator) NextFor() int {
	id := a.fors
	a.fors++
	return id
}

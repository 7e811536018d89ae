package dissector

import (
	stderrors "errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/tonylturner/tlvscope/internal/cursor"
	"github.com/tonylturner/tlvscope/internal/errors"
	"github.com/tonylturner/tlvscope/internal/field"
)

// KeyType is the type of a dissector table's keys.
type KeyType uint8

const (
	KeyUint8 KeyType = iota + 1
	KeyUint16
	KeyUint24
	KeyUint32
	KeyString
)

func (k KeyType) String() string {
	switch k {
	case KeyUint8:
		return "uint8"
	case KeyUint16:
		return "uint16"
	case KeyUint24:
		return "uint24"
	case KeyUint32:
		return "uint32"
	case KeyString:
		return "string"
	default:
		return "invalid"
	}
}

func (k KeyType) max() uint64 {
	switch k {
	case KeyUint8:
		return 0xFF
	case KeyUint16:
		return 0xFFFF
	case KeyUint24:
		return 0xFFFFFF
	case KeyUint32:
		return 0xFFFFFFFF
	default:
		return 0
	}
}

// Handler decodes the bytes of cur into tree. Returning an error stops the
// handler; the error is turned into a diagnostic by the caller, and the
// fields added before it stay in the tree.
type Handler interface {
	Dissect(dc *Context, cur *cursor.Cursor, tree *field.Tree) error
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(dc *Context, cur *cursor.Cursor, tree *field.Tree) error

func (f HandlerFunc) Dissect(dc *Context, cur *cursor.Cursor, tree *field.Tree) error {
	return f(dc, cur, tree)
}

// HeuristicFunc inspects a payload and reports whether its protocol
// recognizes it. It receives a private cursor and must not keep it.
type HeuristicFunc func(cur *cursor.Cursor) bool

// Protocol is a registered dissector.
type Protocol struct {
	Name    string // short name, e.g. "bvlc"
	Title   string // e.g. "BACnet Virtual Link Control"
	Handler Handler
}

// Column returns the protocol column label.
func (p *Protocol) Column() string {
	return strings.ToUpper(p.Name)
}

type heuristic struct {
	protocol *Protocol
	match    HeuristicFunc
}

// Table is a named mapping from keys to protocols.
type Table struct {
	Name    string
	KeyType KeyType
	uints   map[uint64]*Protocol
	strs    map[string]*Protocol
}

// DataProtocol is the name of the raw-data fallback dissector.
const DataProtocol = "data"

// Builder collects registrations at startup. Errors are accumulated and
// reported together by Build.
type Builder struct {
	tables     map[string]*Table
	heuristics map[string][]heuristic
	protocols  map[string]*Protocol
	errs       []error
	built      bool
}

// NewBuilder returns a builder with only the data protocol registered.
func NewBuilder() *Builder {
	b := &Builder{
		tables:     make(map[string]*Table),
		heuristics: make(map[string][]heuristic),
		protocols:  make(map[string]*Protocol),
	}
	b.RegisterProtocol(DataProtocol, "Data", HandlerFunc(dissectData))
	return b
}

func (b *Builder) fail(err error) {
	b.errs = append(b.errs, err)
}

func (b *Builder) open() bool {
	if b.built {
		b.fail(errors.ErrRegistryFrozen)
		return false
	}
	return true
}

// Err returns the registration errors collected so far.
func (b *Builder) Err() error {
	return stderrors.Join(b.errs...)
}

// RegisterProtocol declares a dissector by name.
func (b *Builder) RegisterProtocol(name, title string, h Handler) *Protocol {
	p := &Protocol{Name: name, Title: title, Handler: h}
	if !b.open() {
		return p
	}
	if h == nil {
		b.fail(fmt.Errorf("protocol %s: nil handler", name))
		return p
	}
	if existing, ok := b.protocols[name]; ok {
		b.fail(&errors.DuplicateRegistrationError{Table: "protocols", Key: name, Existing: existing.Title, Protocol: title})
		return p
	}
	b.protocols[name] = p
	return p
}

// Protocol returns a protocol registered so far.
func (b *Builder) Protocol(name string) (*Protocol, bool) {
	p, ok := b.protocols[name]
	return p, ok
}

// RegisterTable declares a table. Declaring the same name again with the
// same key type is allowed; with a different key type it is an error.
func (b *Builder) RegisterTable(name string, kt KeyType) {
	if !b.open() {
		return
	}
	if kt < KeyUint8 || kt > KeyString {
		b.fail(fmt.Errorf("table %s: invalid key type %d", name, kt))
		return
	}
	if t, ok := b.tables[name]; ok {
		if t.KeyType != kt {
			b.fail(&errors.DuplicateTableError{Table: name, Existing: t.KeyType.String(), Requested: kt.String()})
		}
		return
	}
	b.tables[name] = &Table{
		Name:    name,
		KeyType: kt,
		uints:   make(map[uint64]*Protocol),
		strs:    make(map[string]*Protocol),
	}
}

func (b *Builder) table(name string, wantString bool) (*Table, bool) {
	t, ok := b.tables[name]
	if !ok {
		b.fail(fmt.Errorf("%w: %s", errors.ErrUnknownTable, name))
		return nil, false
	}
	if (t.KeyType == KeyString) != wantString {
		kind := "uint"
		if wantString {
			kind = "string"
		}
		b.fail(fmt.Errorf("table %s has key type %s, got %s key", name, t.KeyType, kind))
		return nil, false
	}
	return t, true
}

// AddUint binds key in table to p. Binding a key twice is an error, even
// to the same protocol.
func (b *Builder) AddUint(table string, key uint64, p *Protocol) {
	if !b.open() {
		return
	}
	t, ok := b.table(table, false)
	if !ok {
		return
	}
	if key > t.KeyType.max() {
		b.fail(fmt.Errorf("table %s: key %d does not fit %s", table, key, t.KeyType))
		return
	}
	if existing, dup := t.uints[key]; dup {
		b.fail(&errors.DuplicateRegistrationError{Table: table, Key: strconv.FormatUint(key, 10), Existing: existing.Name, Protocol: p.Name})
		return
	}
	t.uints[key] = p
}

// AddString binds a string key in table to p.
func (b *Builder) AddString(table, key string, p *Protocol) {
	if !b.open() {
		return
	}
	t, ok := b.table(table, true)
	if !ok {
		return
	}
	if existing, dup := t.strs[key]; dup {
		b.fail(&errors.DuplicateRegistrationError{Table: table, Key: key, Existing: existing.Name, Protocol: p.Name})
		return
	}
	t.strs[key] = p
}

// AddHeuristic appends a content-based matcher to the named heuristic
// list. Matchers run in registration order.
func (b *Builder) AddHeuristic(list string, p *Protocol, match HeuristicFunc) {
	if !b.open() {
		return
	}
	if match == nil {
		b.fail(fmt.Errorf("heuristic %s/%s: nil matcher", list, p.Name))
		return
	}
	for _, h := range b.heuristics[list] {
		if h.protocol.Name == p.Name {
			b.fail(&errors.DuplicateRegistrationError{Table: list + " heuristics", Key: p.Name, Existing: p.Name, Protocol: p.Name})
			return
		}
	}
	b.heuristics[list] = append(b.heuristics[list], heuristic{protocol: p, match: match})
}

// Alias binds an already registered protocol, by name, to a key given as
// text. Used for configuration-driven bindings.
func (b *Builder) Alias(table, key, protocol string) {
	if !b.open() {
		return
	}
	p, ok := b.protocols[protocol]
	if !ok {
		b.fail(fmt.Errorf("binding %s=%s: unknown protocol %q", table, key, protocol))
		return
	}
	t, ok := b.tables[table]
	if !ok {
		b.fail(fmt.Errorf("binding %s=%s: %w: %s", table, key, errors.ErrUnknownTable, table))
		return
	}
	if t.KeyType == KeyString {
		b.AddString(table, key, p)
		return
	}
	v, err := strconv.ParseUint(key, 0, 32)
	if err != nil {
		b.fail(fmt.Errorf("binding %s=%s: parse key: %w", table, key, err))
		return
	}
	b.AddUint(table, v, p)
}

// Build freezes the registrations into a Registry. The builder cannot be
// used afterwards.
func (b *Builder) Build() (*Registry, error) {
	if b.built {
		return nil, errors.ErrRegistryFrozen
	}
	b.built = true
	if len(b.errs) > 0 {
		return nil, stderrors.Join(b.errs...)
	}
	return &Registry{
		tables:     b.tables,
		heuristics: b.heuristics,
		protocols:  b.protocols,
		data:       b.protocols[DataProtocol],
	}, nil
}

// Registry is the frozen dispatch state. It has no mutating methods and is
// safe for concurrent use by any number of dissections.
type Registry struct {
	tables     map[string]*Table
	heuristics map[string][]heuristic
	protocols  map[string]*Protocol
	data       *Protocol
}

// FindProtocol returns a protocol by short name.
func (r *Registry) FindProtocol(name string) (*Protocol, bool) {
	p, ok := r.protocols[name]
	return p, ok
}

// LookupUint returns the protocol bound to key in table.
func (r *Registry) LookupUint(table string, key uint64) (*Protocol, bool) {
	t, ok := r.tables[table]
	if !ok || t.KeyType == KeyString {
		return nil, false
	}
	p, ok := t.uints[key]
	return p, ok
}

// LookupString returns the protocol bound to key in a string table.
func (r *Registry) LookupString(table, key string) (*Protocol, bool) {
	t, ok := r.tables[table]
	if !ok || t.KeyType != KeyString {
		return nil, false
	}
	p, ok := t.strs[key]
	return p, ok
}

// LookupOrDefault returns the title of the protocol bound to key, or the
// fallback (formatted with key if it has a verb). It is for display only.
func (r *Registry) LookupOrDefault(table string, key uint64, fallback string) string {
	if p, ok := r.LookupUint(table, key); ok {
		return p.Title
	}
	if strings.Contains(fallback, "%") {
		return fmt.Sprintf(fallback, key)
	}
	return fallback
}

// HasTable reports whether a table was declared.
func (r *Registry) HasTable(name string) bool {
	_, ok := r.tables[name]
	return ok
}

// KeyTypeOf returns the key type of a declared table.
func (r *Registry) KeyTypeOf(name string) (KeyType, bool) {
	t, ok := r.tables[name]
	if !ok {
		return 0, false
	}
	return t.KeyType, true
}

// EntryInfo describes one binding for listings.
type EntryInfo struct {
	Key      string
	Protocol string
}

// TableInfo describes a table for listings.
type TableInfo struct {
	Name    string
	KeyType KeyType
	Entries []EntryInfo
}

// Tables lists every table, sorted by name, with entries sorted by key.
func (r *Registry) Tables() []TableInfo {
	out := make([]TableInfo, 0, len(r.tables))
	for _, t := range r.tables {
		info := TableInfo{Name: t.Name, KeyType: t.KeyType}
		if t.KeyType == KeyString {
			keys := make([]string, 0, len(t.strs))
			for k := range t.strs {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			for _, k := range keys {
				info.Entries = append(info.Entries, EntryInfo{Key: k, Protocol: t.strs[k].Name})
			}
		} else {
			keys := make([]uint64, 0, len(t.uints))
			for k := range t.uints {
				keys = append(keys, k)
			}
			sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
			for _, k := range keys {
				info.Entries = append(info.Entries, EntryInfo{Key: strconv.FormatUint(k, 10), Protocol: t.uints[k].Name})
			}
		}
		out = append(out, info)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Heuristics lists the protocols of a heuristic list in match order.
func (r *Registry) Heuristics(list string) []string {
	var names []string
	for _, h := range r.heuristics[list] {
		names = append(names, h.protocol.Name)
	}
	return names
}

// HeuristicLists returns the names of all heuristic lists, sorted.
func (r *Registry) HeuristicLists() []string {
	names := make([]string, 0, len(r.heuristics))
	for name := range r.heuristics {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Protocols returns every registered protocol, sorted by name.
func (r *Registry) Protocols() []*Protocol {
	out := make([]*Protocol, 0, len(r.protocols))
	for _, p := range r.protocols {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func dissectData(dc *Context, cur *cursor.Cursor, tree *field.Tree) error {
	start := cur.Offset()
	b, err := cur.Bytes(cur.Remaining())
	if err != nil {
		return err
	}
	tree.Add(field.Field{
		Label:   "Data",
		Kind:    field.KindBytes,
		Range:   field.Range{Start: start, Length: len(b)},
		Value:   b,
		Display: fmt.Sprintf("%d bytes", len(b)),
	})
	return nil
}

package anim

import "sync"

// AnimChannelScalarTable stores one float per frame. A single entry is
// constant and an empty table reads as zero.
type AnimChannelScalarTable struct {
	AnimGroup
	table []float32
}

// NewAnimChannelScalarTable creates a scalar table channel under parent.
func NewAnimChannelScalarTable(parent AnimNode, name string, table []float32) *AnimChannelScalarTable {
	c := &AnimChannelScalarTable{AnimGroup: AnimGroup{name: name}, table: table}
	AddAnimChild(parent, c)
	return c
}

func (c *AnimChannelScalarTable) TypeName() string     { return "AnimChannelScalarTable" }
func (c *AnimChannelScalarTable) ValueType() ValueType { return ValueScalar }

// Table returns the stored frames.
func (c *AnimChannelScalarTable) Table() []float32 { return c.table }

// SetTable replaces the stored frames.
func (c *AnimChannelScalarTable) SetTable(table []float32) { c.table = table }

func (c *AnimChannelScalarTable) Value(frame int) float32 {
	if len(c.table) == 0 {
		return 0
	}
	return c.table[tableIndex(frame, len(c.table))]
}

func (c *AnimChannelScalarTable) HasChanged(lastFrame int, lastFrac float64, thisFrame int, thisFrac float64) bool {
	return tableChanged(c.table, lastFrame, lastFrac, thisFrame, thisFrac)
}

// AnimChannelScalarFixed holds one value for every frame.
type AnimChannelScalarFixed struct {
	AnimGroup
	value float32
}

// NewAnimChannelScalarFixed creates an unattached constant scalar channel.
func NewAnimChannelScalarFixed(name string, value float32) *AnimChannelScalarFixed {
	return &AnimChannelScalarFixed{AnimGroup: AnimGroup{name: name}, value: value}
}

func (c *AnimChannelScalarFixed) TypeName() string     { return "AnimChannelScalarFixed" }
func (c *AnimChannelScalarFixed) ValueType() ValueType { return ValueScalar }
func (c *AnimChannelScalarFixed) Value(int) float32    { return c.value }

func (c *AnimChannelScalarFixed) HasChanged(int, float64, int, float64) bool { return false }

// AnimChannelScalarDynamic reports a value set directly or read from a
// ScalarProvider on every access.
type AnimChannelScalarDynamic struct {
	AnimGroup

	mu       sync.Mutex
	provider ScalarProvider
	value    float32
	last     float32
}

// NewAnimChannelScalarDynamic creates an unattached dynamic scalar channel.
func NewAnimChannelScalarDynamic(name string) *AnimChannelScalarDynamic {
	return &AnimChannelScalarDynamic{AnimGroup: AnimGroup{name: name}}
}

func (c *AnimChannelScalarDynamic) TypeName() string     { return "AnimChannelScalarDynamic" }
func (c *AnimChannelScalarDynamic) ValueType() ValueType { return ValueScalar }

// SetValue stores an explicit value and drops any provider.
func (c *AnimChannelScalarDynamic) SetValue(v float32) {
	c.mu.Lock()
	c.value = v
	c.provider = nil
	c.mu.Unlock()
}

// SetProvider makes the channel follow p.
func (c *AnimChannelScalarDynamic) SetProvider(p ScalarProvider) {
	c.mu.Lock()
	c.provider = p
	c.mu.Unlock()
}

func (c *AnimChannelScalarDynamic) Value(int) float32 {
	c.mu.Lock()
	p, v := c.provider, c.value
	c.mu.Unlock()
	if p != nil {
		return p.Scalar()
	}
	return v
}

func (c *AnimChannelScalarDynamic) HasChanged(int, float64, int, float64) bool {
	cur := c.Value(0)
	c.mu.Lock()
	defer c.mu.Unlock()
	changed := cur != c.last
	c.last = cur
	return changed
}

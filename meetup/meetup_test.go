package meetup

import (
	"encoding/json"
	"flag"
	"testing"

	"github.com/go-playground/assert/v2"
)

func init() {
	initGlog()
}

func initGlog() {
	flag.Set("logtostderr", "true")
	flag.Set("stderrthreshold", "INFO")
	flag.Set("v", "0")
}

func TestIdOrder(t *testing.T) {
	// ulids are ordered by create time
	// we use this property for connection attempt ids

	a := NewId()
	for i := 0; i < 4096; i++ {
		b := NewId()
		assert.Equal(t, a.LessThan(b), true)
		assert.Equal(t, b.LessThan(a), false)
		assert.Equal(t, b.LessThan(b), false)
		assert.Equal(t, b == a, false)
		a = b
	}
}

func TestIdJsonCodec(t *testing.T) {
	type Test struct {
		A Id  `json:"a,omitempty"`
		B *Id `json:"b,omitempty"`
	}

	test1 := &Test{}
	test1.A = NewId()
	b_ := NewId()
	test1.B = &b_

	test1Json, err := json.Marshal(test1)
	assert.Equal(t, err, nil)

	test2 := &Test{}
	err = json.Unmarshal(test1Json, test2)
	assert.Equal(t, err, nil)

	assert.Equal(t, test1.A, test2.A)
	assert.Equal(t, test1.B, test2.B)
}

func TestParseId(t *testing.T) {
	a := NewId()

	parsed, err := ParseId(a.String())
	assert.Equal(t, err, nil)
	assert.Equal(t, parsed, a)

	_, err = ParseId("not-an-id")
	assert.NotEqual(t, err, nil)

	assert.Equal(t, Id{}.IsZero(), true)
	assert.Equal(t, a.IsZero(), false)
}

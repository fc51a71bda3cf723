package normalize

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFlatten(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{
			name: "flat object",
			in:   `{"a": 1}`,
			want: "a: 1",
		},
		{
			name: "key order preserved",
			in:   `{"z": "last", "a": "first"}`,
			want: "z: last\na: first",
		},
		{
			name: "nested object gets header",
			in:   `{"endpoint": {"method": "POST", "path": "/apply"}}`,
			want: "endpoint:\nendpoint.method: POST\nendpoint.path: /apply",
		},
		{
			name: "array of scalars",
			in:   `{"codes": ["SAVE15", "FREESHIP"]}`,
			want: "codes:\ncodes[0]: SAVE15\ncodes[1]: FREESHIP",
		},
		{
			name: "array of objects has no item header",
			in:   `{"items": [{"id": 1}, {"id": 2}]}`,
			want: "items:\nitems[0].id: 1\nitems[1].id: 2",
		},
		{
			name: "top-level array",
			in:   `[1, [2, 3]]`,
			want: "[0]: 1\n[1][0]: 2\n[1][1]: 3",
		},
		{
			name: "scalar literals",
			in:   `{"t": true, "f": false, "n": null, "x": 1.50}`,
			want: "t: True\nf: False\nn: None\nx: 1.50",
		},
		{
			name: "empty container",
			in:   `{"meta": {}, "id": 7}`,
			want: "meta:\n\nid: 7",
		},
		{
			name: "top-level scalar",
			in:   `"hello"`,
			want: "hello",
		},
		{
			name: "malformed returned raw",
			in:   `{"a": 1,`,
			want: `{"a": 1,`,
		},
		{
			name: "trailing data returned raw",
			in:   `{"a": 1} {"b": 2}`,
			want: `{"a": 1} {"b": 2}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Flatten(tt.in))
		})
	}
}

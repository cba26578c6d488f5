package diff

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleChange = `<?xml version="1.0" encoding="UTF-8"?>
<osmChange version="0.6">
  <create>
    <node id="-1" lon="13.377" lat="52.516"/>
    <node id="-4" lon="13.379" lat="52.517">
      <tag k="amenity" v="bench"/>
    </node>
    <way id="-1">
      <nd ref="-1"/>
      <nd ref="-4"/>
      <tag k="highway" v="tertiary"/>
      <tag k="name" v="Common Road Name"/>
    </way>
  </create>
  <modify>
    <node id="101" version="1" lon="13.380" lat="52.518"/>
  </modify>
  <delete if-unused="true">
    <node id="102" version="2"/>
  </delete>
</osmChange>`

func TestParseSampleDocument(t *testing.T) {
	ops, err := Parse(strings.NewReader(sampleChange))
	require.NoError(t, err)
	require.Len(t, ops, 5)

	assert.Equal(t, Create, ops[0].Action)
	assert.Equal(t, int64(-1), ops[0].Node.ID)
	assert.Equal(t, 13.377, ops[0].Node.Lon)
	assert.Equal(t, 52.516, ops[0].Node.Lat)

	assert.Equal(t, Create, ops[1].Action)
	assert.Equal(t, map[string]string{"amenity": "bench"}, ops[1].Node.Tags)

	require.NotNil(t, ops[2].Way)
	assert.Equal(t, int64(-1), ops[2].Way.ID)
	assert.Equal(t, []int64{-1, -4}, ops[2].Way.Refs)
	assert.Equal(t, map[string]string{"highway": "tertiary", "name": "Common Road Name"}, ops[2].Way.Tags)

	assert.Equal(t, Modify, ops[3].Action)
	assert.Equal(t, int64(101), ops[3].Node.ID)
	assert.Equal(t, int64(1), ops[3].Node.Version)

	assert.Equal(t, Delete, ops[4].Action)
	assert.Equal(t, int64(102), ops[4].Node.ID)
	assert.True(t, ops[4].IfUnused)
}

func TestParseGroupOrdering(t *testing.T) {
	// Interleaved blocks still come out grouped: creates, then modifies,
	// then deletes, with document order inside each group and Index
	// preserving the original position.
	doc := `<osmChange>
	  <delete><node id="7" version="1"/></delete>
	  <create><node id="-1" lon="1" lat="1"/></create>
	  <modify><node id="5" version="2" lon="2" lat="2"/></modify>
	  <create><node id="-2" lon="3" lat="3"/></create>
	</osmChange>`

	ops, err := Parse(strings.NewReader(doc))
	require.NoError(t, err)
	require.Len(t, ops, 4)

	assert.Equal(t, []Action{Create, Create, Modify, Delete},
		[]Action{ops[0].Action, ops[1].Action, ops[2].Action, ops[3].Action})
	assert.Equal(t, int64(-1), ops[0].Node.ID)
	assert.Equal(t, int64(-2), ops[1].Node.ID)
	assert.Equal(t, []int{1, 3, 2, 0}, []int{ops[0].Index, ops[1].Index, ops[2].Index, ops[3].Index})
}

func TestParseBlockLevelIfUnused(t *testing.T) {
	doc := `<osmChange>
	  <delete if-unused="true">
	    <node id="1" version="1"/>
	    <way id="2" version="1"/>
	  </delete>
	  <delete>
	    <node id="3" version="1"/>
	  </delete>
	</osmChange>`

	ops, err := Parse(strings.NewReader(doc))
	require.NoError(t, err)
	require.Len(t, ops, 3)
	assert.True(t, ops[0].IfUnused)
	assert.True(t, ops[1].IfUnused)
	assert.False(t, ops[2].IfUnused)
}

func TestParseDuplicateTagKeysLastWins(t *testing.T) {
	doc := `<osmChange><create>
	  <node id="-1" lon="0" lat="0">
	    <tag k="name" v="first"/>
	    <tag k="name" v="second"/>
	  </node>
	</create></osmChange>`

	ops, err := Parse(strings.NewReader(doc))
	require.NoError(t, err)
	assert.Equal(t, "second", ops[0].Node.Tags["name"])
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		name string
		doc  string
		want string
	}{
		{
			name: "wrong root element",
			doc:  `<osm><create/></osm>`,
			want: "expected root element",
		},
		{
			name: "empty document",
			doc:  ``,
			want: "empty document",
		},
		{
			name: "unrecognized block",
			doc:  `<osmChange><upsert/></osmChange>`,
			want: "unrecognized change block",
		},
		{
			name: "unrecognized element",
			doc:  `<osmChange><create><relation id="-1"/></create></osmChange>`,
			want: "unrecognized element",
		},
		{
			name: "missing node id",
			doc:  `<osmChange><create><node lon="1" lat="2"/></create></osmChange>`,
			want: `missing required attribute "id"`,
		},
		{
			name: "non-numeric id",
			doc:  `<osmChange><create><node id="abc" lon="1" lat="2"/></create></osmChange>`,
			want: "non-numeric id",
		},
		{
			name: "missing version on modify",
			doc:  `<osmChange><modify><node id="5" lon="1" lat="2"/></modify></osmChange>`,
			want: `missing required attribute "version"`,
		},
		{
			name: "non-numeric version",
			doc:  `<osmChange><delete><node id="5" version="two"/></delete></osmChange>`,
			want: "non-numeric version",
		},
		{
			name: "missing coordinates on create",
			doc:  `<osmChange><create><node id="-1" lon="1"/></create></osmChange>`,
			want: `missing required attribute "lat"`,
		},
		{
			name: "longitude out of range",
			doc:  `<osmChange><create><node id="-1" lon="181" lat="0"/></create></osmChange>`,
			want: "longitude 181 out of range",
		},
		{
			name: "latitude out of range",
			doc:  `<osmChange><create><node id="-1" lon="0" lat="-90.5"/></create></osmChange>`,
			want: "latitude -90.5 out of range",
		},
		{
			name: "nd without ref",
			doc:  `<osmChange><create><way id="-1"><nd/></way></create></osmChange>`,
			want: "<nd> requires a ref attribute",
		},
		{
			name: "non-numeric nd ref",
			doc:  `<osmChange><create><way id="-1"><nd ref="x"/></way></create></osmChange>`,
			want: "non-numeric nd ref",
		},
		{
			name: "tag without value",
			doc:  `<osmChange><create><node id="-1" lon="0" lat="0"><tag k="name"/></node></create></osmChange>`,
			want: "<tag> requires k and v attributes",
		},
		{
			name: "truncated document",
			doc:  `<osmChange><create><node id="-1" lon="0" lat="0">`,
			want: "malformed XML",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(strings.NewReader(tt.doc))
			require.Error(t, err)

			var parseErr *ParseError
			require.ErrorAs(t, err, &parseErr)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestParseRejectsContentAfterRoot(t *testing.T) {
	// A change block outside the root must fail instead of being applied.
	doc := `<osmChange>
	  <create><node id="-1" lon="1" lat="1"/></create>
	</osmChange>
	<delete><node id="5" version="1"/></delete>`

	_, err := Parse(strings.NewReader(doc))
	require.Error(t, err)

	var parseErr *ParseError
	require.ErrorAs(t, err, &parseErr)
	assert.Contains(t, err.Error(), "content after closing </osmChange>")
}

func TestParseErrorCarriesElementID(t *testing.T) {
	doc := `<osmChange><modify><node id="42" lon="1" lat="2"/></modify></osmChange>`

	_, err := Parse(strings.NewReader(doc))
	require.Error(t, err)

	var parseErr *ParseError
	require.ErrorAs(t, err, &parseErr)
	assert.Equal(t, "node", parseErr.Element)
	assert.Equal(t, int64(42), parseErr.ID)
}

func TestParseDeleteNodeWithoutCoordinates(t *testing.T) {
	doc := `<osmChange><delete><node id="9" version="3"/></delete></osmChange>`

	ops, err := Parse(strings.NewReader(doc))
	require.NoError(t, err)
	require.Len(t, ops, 1)
	assert.Equal(t, int64(9), ops[0].Node.ID)
	assert.Equal(t, int64(3), ops[0].Node.Version)
}

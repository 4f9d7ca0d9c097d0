package interval

import (
	"io/ioutil"
	"math"
	"path/filepath"
	"strings"
	"testing"

	"github.com/grailbio/testutil"
	"github.com/grailbio/testutil/assert"
	"github.com/grailbio/testutil/expect"
)

const testBED = `track name=confident
chr1	10	20
chr1	15	30
chr1	30	35
chr1	50	60
chr2	0	0
chr3	5	6	extra	columns
`

func TestNewBEDUnion(t *testing.T) {
	u, err := NewBEDUnion(strings.NewReader(testBED), NewBEDOpts{})
	assert.NoError(t, err)
	expect.EQ(t, u.nameMap, map[string]([]PosType){
		"chr1": []PosType{10, 35, 50, 60},
		"chr2": []PosType{},
		"chr3": []PosType{5, 6},
	})
	expect.EQ(t, u.NBases(), 36)

	u, err = NewBEDUnion(strings.NewReader("chr1\t11\t20\n"), NewBEDOpts{OneBasedInput: true})
	assert.NoError(t, err)
	expect.EQ(t, u.nameMap["chr1"], []PosType{10, 20})
}

func TestNewBEDUnionErrors(t *testing.T) {
	for _, bed := range []string{
		"chr1\t10\n",
		"chr1\tx\t20\n",
		"chr1\t20\t10\n",
		"chr1\t10\t20\nchr2\t1\t2\nchr1\t30\t40\n",
		"chr1\t10\t20\nchr1\t5\t8\n",
	} {
		_, err := NewBEDUnion(strings.NewReader(bed), NewBEDOpts{})
		expect.NotNil(t, err, "bed %q", bed)
	}
}

func TestContains(t *testing.T) {
	u, err := NewBEDUnion(strings.NewReader(testBED), NewBEDOpts{})
	assert.NoError(t, err)
	tests := []struct {
		chr  string
		pos  PosType
		want bool
	}{
		{"chr1", 9, false},
		{"chr1", 10, true},
		{"chr1", 34, true},
		{"chr1", 35, false},
		{"chr1", 55, true},
		{"chr1", 12, true},
		{"chr1", 60, false},
		{"chr2", 0, false},
		{"chr3", 5, true},
		{"chrX", 5, false},
		{"chr1", 50, true},
	}
	for _, tt := range tests {
		expect.EQ(t, u.ContainsByName(tt.chr, tt.pos), tt.want, "%s:%d", tt.chr, tt.pos)
	}
}

func TestIntersects(t *testing.T) {
	u, err := NewBEDUnionFromEntries([]Entry{
		{"chr1", 10, 20},
		{"chr1", 40, 50},
	})
	assert.NoError(t, err)
	tests := []struct {
		start, limit PosType
		want         bool
	}{
		{0, 10, false},
		{0, 11, true},
		{19, 40, true},
		{20, 40, false},
		{45, 46, true},
		{50, 100, false},
		{15, 15, false},
	}
	for _, tt := range tests {
		expect.EQ(t, u.IntersectsByName("chr1", tt.start, tt.limit), tt.want, "[%d, %d)", tt.start, tt.limit)
	}
	expect.False(t, u.IntersectsByName("chr2", 0, 100))
}

func TestNewBEDUnionFromPath(t *testing.T) {
	tmpdir, cleanup := testutil.TempDir(t, "", "")
	defer cleanup()
	path := filepath.Join(tmpdir, "confident.bed")
	assert.NoError(t, ioutil.WriteFile(path, []byte(testBED), 0644))
	u, err := NewBEDUnionFromPath(path, NewBEDOpts{})
	assert.NoError(t, err)
	expect.True(t, u.ContainsByName("chr1", 20))
}

func TestParseRegionString(t *testing.T) {
	tests := []struct {
		region  string
		chrName string
		start0  PosType
		end     PosType
	}{
		{"chr1:1-1000", "chr1", 0, 1000},
		{"chr1:1000", "chr1", 999, 1000},
		{"chr1", "chr1", 0, math.MaxInt32 - 1},
	}
	for _, tt := range tests {
		result, err := ParseRegionString(tt.region)
		expect.NoError(t, err)
		expect.EQ(t, result.ChrName, tt.chrName)
		expect.EQ(t, result.Start0, tt.start0)
		expect.EQ(t, result.End, tt.end)
	}
	for _, region := range []string{"", ":1-10", "chr1:0", "chr1:10-5", "chr1:a-5"} {
		_, err := ParseRegionString(region)
		expect.NotNil(t, err, "region %q", region)
	}
}

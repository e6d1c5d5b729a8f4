package boxspec

import (
	"testing"

	"github.com/boxcutter-go/boxcutter/internal/box"
)

func typ(s string) box.Type { return box.TypeFromString(s) }

func TestParseList_Index(t *testing.T) {
	list, err := ParseList([]string{"i=2..5"})
	if err != nil {
		t.Fatal(err)
	}
	tests := []struct {
		index int
		want  bool
	}{
		{1, false}, {2, true}, {3, true}, {5, true}, {6, false},
	}
	for _, tt := range tests {
		got := list.Matches(tt.index, typ("AAAA"), nil, 0)
		if got != tt.want {
			t.Errorf("index %d: got %v, want %v", tt.index, got, tt.want)
		}
	}
}

func TestParseList_IndexSingle(t *testing.T) {
	list, err := ParseList([]string{"i=3"})
	if err != nil {
		t.Fatal(err)
	}
	if !list.Matches(3, typ("AAAA"), nil, 0) || list.Matches(4, typ("AAAA"), nil, 0) {
		t.Error("i=3 should match only index 3")
	}
}

func TestParseList_IndexOpenEnded(t *testing.T) {
	list, err := ParseList([]string{"i=3.."})
	if err != nil {
		t.Fatal(err)
	}
	if list.Matches(2, typ("AAAA"), nil, 0) || !list.Matches(3, typ("AAAA"), nil, 0) || !list.Matches(1000, typ("AAAA"), nil, 0) {
		t.Error("i=3.. should match 3 and above only")
	}
}

func TestParseList_TypeLiteral(t *testing.T) {
	list, err := ParseList([]string{"type=jxlc"})
	if err != nil {
		t.Fatal(err)
	}
	if !list.Matches(0, typ("jxlc"), nil, 0) {
		t.Error("expected literal type match")
	}
	if list.Matches(0, typ("jxlp"), nil, 0) {
		t.Error("did not expect jxlp to match jxlc")
	}
}

func TestParseList_TypeBrobAware(t *testing.T) {
	list, err := ParseList([]string{"type=Exif"})
	if err != nil {
		t.Fatal(err)
	}
	inner := typ("Exif")
	if !list.Matches(0, typ("brob"), &inner, 0) {
		t.Error("lowercase type= should match brob's inner type")
	}
}

func TestParseList_TYPEOuterOnly(t *testing.T) {
	list, err := ParseList([]string{"TYPE=brob"})
	if err != nil {
		t.Fatal(err)
	}
	inner := typ("Exif")
	if !list.Matches(0, typ("brob"), &inner, 0) {
		t.Error("uppercase TYPE= should match brob's outer type")
	}
	if list.Matches(0, typ("Exif"), nil, 0) {
		t.Error("uppercase TYPE=brob should not match a literal Exif box")
	}
}

func TestParseList_ITypeCaseInsensitive(t *testing.T) {
	list, err := ParseList([]string{"itype=JXLC"})
	if err != nil {
		t.Fatal(err)
	}
	if !list.Matches(0, typ("jxlc"), nil, 0) {
		t.Error("itype should be case-insensitive")
	}
}

func TestParseList_Wildcard(t *testing.T) {
	list, err := ParseList([]string{"type~=jxl*"})
	if err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{"jxlc", "jxlp", "jxll"} {
		if !list.Matches(0, typ(want), nil, 0) {
			t.Errorf("expected %s to match jxl*", want)
		}
	}
	if list.Matches(0, typ("ftyp"), nil, 0) {
		t.Error("ftyp should not match jxl*")
	}
}

func TestParseList_AliasJxl(t *testing.T) {
	list, err := ParseList([]string{"@jxl"})
	if err != nil {
		t.Fatal(err)
	}
	if !list.Matches(0, typ("jxlc"), nil, 0) {
		t.Error("@jxl should match jxlc via itype~=jxl*")
	}
	if !list.Matches(0, typ("ftyp"), nil, 0) {
		t.Error("@jxl should match ftyp")
	}
	if list.Matches(0, typ("jbrd"), nil, 0) {
		t.Error("@jxl (lowercase) should not include jbrd")
	}
}

func TestParseList_AliasJXLUppercase(t *testing.T) {
	list, err := ParseList([]string{"@JXL"})
	if err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{"jxlc", "ftyp", "jbrd", "jumb"} {
		if !list.Matches(0, typ(want), nil, 0) {
			t.Errorf("@JXL should match %s", want)
		}
	}
	inner := typ("Exif")
	if !list.Matches(0, typ("brob"), &inner, 0) {
		t.Error("@JXL should match a brob box whose inner type is Exif")
	}
}

func TestList_NilMatchesEverything(t *testing.T) {
	var list List
	if !list.Matches(0, typ("AAAA"), nil, 0) {
		t.Error("nil list should match everything")
	}
}

func TestList_EmptyMatchesNothing(t *testing.T) {
	list := List{}
	if list.Matches(0, typ("AAAA"), nil, 0) {
		t.Error("empty non-nil list should match nothing")
	}
}

func TestList_OrderInvariant(t *testing.T) {
	a, err := ParseList([]string{"type=AAAA", "type=BBBB"})
	if err != nil {
		t.Fatal(err)
	}
	b, err := ParseList([]string{"type=BBBB", "type=AAAA"})
	if err != nil {
		t.Fatal(err)
	}
	for _, ty := range []string{"AAAA", "BBBB", "CCCC"} {
		if a.Matches(0, typ(ty), nil, 0) != b.Matches(0, typ(ty), nil, 0) {
			t.Errorf("permutation mismatch for type %s", ty)
		}
	}
}

func TestParseList_InvalidSpec(t *testing.T) {
	if _, err := ParseList([]string{"bogus"}); err == nil {
		t.Error("expected error for spec with no '='")
	}
	if _, err := ParseList([]string{"type=abc"}); err == nil {
		t.Error("expected error for non-4-byte literal type")
	}
	if _, err := ParseList([]string{"i=abc"}); err == nil {
		t.Error("expected error for non-numeric index")
	}
}

func FuzzParseList(f *testing.F) {
	f.Add("type=jxlc")
	f.Add("i=1..5")
	f.Add("@JXL")
	f.Add("type~=jxl*")
	f.Fuzz(func(t *testing.T, s string) {
		list, err := ParseList([]string{s})
		if err != nil {
			return
		}
		list.Matches(0, typ("AAAA"), nil, 0)
	})
}

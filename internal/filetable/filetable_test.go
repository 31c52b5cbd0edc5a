package filetable

import "testing"

func TestNumBlocksForRoundsUp(t *testing.T) {
	cases := []struct {
		size int64
		want int
	}{
		{0, 1},
		{1, 1},
		{BlockSizeBytes, 1},
		{BlockSizeBytes + 1, 2},
		{5 * BlockSizeBytes, 5},
		{5*BlockSizeBytes - 1, 5},
	}
	for _, c := range cases {
		if got := NumBlocksFor(c.size); got != c.want {
			t.Errorf("NumBlocksFor(%d) = %d, want %d", c.size, got, c.want)
		}
	}
}

func TestPutGetDeleteRoundTrip(t *testing.T) {
	tb := New()
	tb.Put(Record{FileName: "a.txt", SizeBytes: 10, NumBlocks: 1, BlockIDs: []int{1, 2}})

	r, ok := tb.Get("a.txt")
	if !ok || r.SizeBytes != 10 {
		t.Fatalf("Get = %+v, %v", r, ok)
	}

	tb.Delete("a.txt")
	if _, ok := tb.Get("a.txt"); ok {
		t.Fatal("record should be gone after Delete")
	}
}

func TestAllIsSortedAndDefensive(t *testing.T) {
	tb := New()
	tb.Put(Record{FileName: "b.txt"})
	tb.Put(Record{FileName: "a.txt"})

	all := tb.All()
	if len(all) != 2 || all[0].FileName != "a.txt" || all[1].FileName != "b.txt" {
		t.Fatalf("All() order = %+v", all)
	}
	all[0].BlockIDs = append(all[0].BlockIDs, 999)
	r, _ := tb.Get("a.txt")
	if len(r.BlockIDs) != 0 {
		t.Fatal("All() leaked a mutable reference into the table")
	}
}

func TestReplaceAllOverwritesWholeTable(t *testing.T) {
	tb := New()
	tb.Put(Record{FileName: "old.txt"})
	tb.ReplaceAll([]Record{{FileName: "new.txt"}})

	if _, ok := tb.Get("old.txt"); ok {
		t.Fatal("old record should not survive ReplaceAll")
	}
	if _, ok := tb.Get("new.txt"); !ok {
		t.Fatal("new record missing after ReplaceAll")
	}
}

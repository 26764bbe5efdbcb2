package state

import "testing"

func TestOrderBook_TopProjections(t *testing.T) {
	b := NewOrderBook(20)

	b.UpdateBid(100.0, 1.0)
	b.UpdateBid(99.5, 2.0)
	b.UpdateBid(99.9, 3.0)
	b.UpdateAsk(100.5, 1.5)
	b.UpdateAsk(101.0, 2.5)
	b.UpdateAsk(100.7, 0.5)

	bids := b.TopBids(20)
	if len(bids) != 3 || bids[0].Price != 100.0 || bids[1].Price != 99.9 || bids[2].Price != 99.5 {
		t.Errorf("bids not sorted descending: %+v", bids)
	}

	asks := b.TopAsks(20)
	if len(asks) != 3 || asks[0].Price != 100.5 || asks[1].Price != 100.7 || asks[2].Price != 101.0 {
		t.Errorf("asks not sorted ascending: %+v", asks)
	}
}

func TestOrderBook_ZeroQtyRemovesLevel(t *testing.T) {
	b := NewOrderBook(20)

	b.UpdateBid(100.0, 1.0)
	b.UpdateBid(100.0, 0)

	if _, ok := b.BestBid(); ok {
		t.Error("level should be removed by qty=0 update")
	}
}

func TestOrderBook_RejectsInvalidLevels(t *testing.T) {
	b := NewOrderBook(20)

	b.UpdateBid(-5, 1.0)
	b.UpdateBid(100.0, -1.0)
	b.UpdateAsk(0, 2.0)

	if _, ok := b.BestBid(); ok {
		t.Error("invalid bid levels must not be stored")
	}
	if _, ok := b.BestAsk(); ok {
		t.Error("invalid ask levels must not be stored")
	}
}

func TestOrderBook_TruncatesToMaxLevels(t *testing.T) {
	b := NewOrderBook(20)

	for i := 0; i < 30; i++ {
		b.UpdateBid(100.0-float64(i)*0.1, 1.0)
	}

	if got := len(b.TopBids(20)); got != 20 {
		t.Errorf("TopBids returned %d levels, want 20", got)
	}
	best, _ := b.BestBid()
	if best.Price != 100.0 {
		t.Errorf("best bid = %v, want 100.0", best.Price)
	}
}

func TestOrderBook_Replace(t *testing.T) {
	b := NewOrderBook(20)
	b.UpdateBid(50.0, 9.0)

	b.Replace(
		[]PriceQty{{Price: 100.0, Qty: 1.0}, {Price: 99.0, Qty: 2.0}},
		[]PriceQty{{Price: 100.5, Qty: 1.0}, {Price: 0, Qty: 1.0}},
	)

	bid, _ := b.BestBid()
	ask, _ := b.BestAsk()
	if bid.Price != 100.0 || ask.Price != 100.5 {
		t.Errorf("best after replace = %v / %v", bid, ask)
	}
	if len(b.TopAsks(20)) != 1 {
		t.Errorf("invalid ask level survived replace")
	}
	if b.Crossed() {
		t.Error("book should not be crossed")
	}
}

func TestOrderBook_CrossedDetection(t *testing.T) {
	b := NewOrderBook(20)
	b.UpdateBid(101.0, 1.0)
	b.UpdateAsk(100.0, 1.0)

	if !b.Crossed() {
		t.Error("bid above ask must be reported as crossed")
	}
}

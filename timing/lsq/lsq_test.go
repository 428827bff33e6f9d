package lsq_test

import (
	"errors"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/mock/gomock"

	"github.com/sarchlab/ooosim/emu"
	"github.com/sarchlab/ooosim/timing/cache"
	"github.com/sarchlab/ooosim/timing/lsq"
)

type fakeCache struct {
	hit      bool
	ready    uint64
	reject   bool
	accesses []cache.Request
}

func (c *fakeCache) Access(req cache.Request) (cache.Result, bool) {
	c.accesses = append(c.accesses, req)
	if c.reject {
		return cache.Result{}, false
	}
	return cache.Result{Hit: c.hit, Ready: c.ready}, true
}

type fakeReservation struct {
	addr  uint64
	valid bool
}

func (r fakeReservation) Holds(addr uint64) bool {
	return r.valid && r.addr == addr
}

func load(al int, pc uint64, size int) lsq.Request {
	return lsq.Request{IsLoad: true, Size: size, ALIndex: al, PC: pc}
}

func store(al int, size int) lsq.Request {
	return lsq.Request{Size: size, ALIndex: al}
}

var _ = Describe("LSQ", func() {
	var (
		mockCtrl *gomock.Controller
		memory   *MockMemory
		sink     *MockViolationSink
		dcache   *fakeCache
		config   lsq.Config
		q        *lsq.LSQ
	)

	BeforeEach(func() {
		mockCtrl = gomock.NewController(GinkgoT())
		memory = NewMockMemory(mockCtrl)
		sink = NewMockViolationSink(mockCtrl)
		dcache = &fakeCache{hit: true}
		config = lsq.Config{LQSize: 4, SQSize: 4, SpeculativeDisambiguation: true}
		q = lsq.New(config, dcache, memory, sink)
	})

	AfterEach(func() {
		mockCtrl.Finish()
	})

	Describe("Dispatch", func() {
		It("should stall when a bundle does not fit", func() {
			q.Dispatch(load(0, 0, 8))
			q.Dispatch(load(1, 4, 8))
			q.Dispatch(store(2, 8))

			Expect(q.Stall(2, 3)).To(BeFalse())
			Expect(q.Stall(3, 0)).To(BeTrue())
			Expect(q.Stall(0, 4)).To(BeTrue())
		})

		It("should return the tails of both queues", func() {
			_, sq0 := q.Dispatch(store(0, 8))
			lq0, sq1 := q.Dispatch(load(1, 4, 8))
			lq1, _ := q.Dispatch(store(2, 8))

			Expect(sq0).To(Equal(lsq.Index{Pos: 0}))
			Expect(lq0).To(Equal(lsq.Index{Pos: 0}))
			Expect(sq1).To(Equal(lsq.Index{Pos: 1}))
			Expect(lq1).To(Equal(lsq.Index{Pos: 1}))
		})
	})

	Describe("Forwarding", func() {
		It("should forward from the youngest older store", func() {
			_, a := q.Dispatch(store(0, 8))
			_, b := q.Dispatch(store(1, 8))
			l, _ := q.Dispatch(load(2, 8, 8))

			q.StoreAddr(1, 0x100, a)
			q.StoreValue(a, 7)
			q.StoreAddr(2, 0x100, b)
			q.StoreValue(b, 9)

			res := q.LoadAddr(3, 0x100, l)
			Expect(res.Ready).To(BeTrue())
			Expect(res.Value).To(Equal(uint64(9)))
			Expect(res.ALIndex).To(Equal(2))
			Expect(res.Fault).NotTo(HaveOccurred())
		})

		It("should extend forwarded data to the load size", func() {
			_, s := q.Dispatch(store(0, 1))
			signed := load(1, 4, 1)
			signed.Signed = true
			l1, _ := q.Dispatch(signed)
			l2, _ := q.Dispatch(load(2, 8, 1))

			q.StoreAddr(1, 0x41, s)
			q.StoreValue(s, 0x1ff)

			Expect(q.LoadAddr(2, 0x41, l1).Value).To(Equal(^uint64(0)))
			Expect(q.LoadAddr(2, 0x41, l2).Value).To(Equal(uint64(0xff)))
		})

		It("should ignore stores to other locations", func() {
			_, s := q.Dispatch(store(0, 8))
			l, _ := q.Dispatch(load(1, 4, 8))
			q.StoreAddr(1, 0x108, s)
			q.StoreValue(s, 1)

			memory.EXPECT().Load(uint64(0x100), 8, false).Return(uint64(42), nil)

			res := q.LoadAddr(2, 0x100, l)
			Expect(res.Ready).To(BeTrue())
			Expect(res.Value).To(Equal(uint64(42)))
		})
	})

	Describe("Disambiguation stalls", func() {
		It("should stall on a size mismatch", func() {
			_, s := q.Dispatch(store(0, 4))
			l, _ := q.Dispatch(load(1, 4, 8))
			q.StoreAddr(1, 0x104, s)
			q.StoreValue(s, 1)

			Expect(q.LoadAddr(2, 0x100, l).Ready).To(BeFalse())
		})

		It("should stall until the store value is known", func() {
			_, s := q.Dispatch(store(0, 8))
			l, _ := q.Dispatch(load(1, 4, 8))
			q.StoreAddr(1, 0x100, s)

			Expect(q.LoadAddr(2, 0x100, l).Ready).To(BeFalse())
			_, ok := q.LoadUnstall(3)
			Expect(ok).To(BeFalse())

			q.StoreValue(s, 5)
			res, ok := q.LoadUnstall(4)
			Expect(ok).To(BeTrue())
			Expect(res.Value).To(Equal(uint64(5)))
		})

		It("should count every attempt of a replayed load", func() {
			_, s := q.Dispatch(store(0, 8))
			l, _ := q.Dispatch(load(1, 4, 8))
			q.StoreAddr(1, 0x100, s)

			q.LoadAddr(2, 0x100, l)
			for cycle := uint64(3); cycle < 6; cycle++ {
				_, ok := q.LoadUnstall(cycle)
				Expect(ok).To(BeFalse())
			}
			q.StoreValue(s, 5)
			_, ok := q.LoadUnstall(6)
			Expect(ok).To(BeTrue())

			memory.EXPECT().Store(uint64(0x100), 8, uint64(5)).Return(nil)
			_, err := q.Commit(false)
			Expect(err).NotTo(HaveOccurred())
			_, err = q.Commit(true)
			Expect(err).NotTo(HaveOccurred())

			stats := q.Stats()
			Expect(stats.LoadAttempts).To(Equal(uint64(5)))
			Expect(stats.Loads).To(Equal(uint64(1)))
			Expect(stats.DisambigStalls).To(Equal(uint64(1)))
		})

		It("should not forward from a store-conditional", func() {
			sc := store(0, 8)
			sc.IsAtomic = true
			_, s := q.Dispatch(sc)
			l, _ := q.Dispatch(load(1, 4, 8))
			q.StoreAddr(1, 0x100, s)
			q.StoreValue(s, 5)

			Expect(q.LoadAddr(2, 0x100, l).Ready).To(BeFalse())
		})

		It("should wait for unknown store addresses without speculation", func() {
			config.SpeculativeDisambiguation = false
			q = lsq.New(config, dcache, memory, sink)

			_, s := q.Dispatch(store(0, 8))
			l, _ := q.Dispatch(load(1, 4, 8))
			Expect(q.LoadAddr(1, 0x100, l).Ready).To(BeFalse())

			q.StoreAddr(2, 0x200, s)
			memory.EXPECT().Load(uint64(0x100), 8, false).Return(uint64(3), nil)

			res, ok := q.LoadUnstall(3)
			Expect(ok).To(BeTrue())
			Expect(res.Value).To(Equal(uint64(3)))
		})

		It("should hold back loads the predictor marks as dependent", func() {
			q.Predictor().Train(0x40)

			_, s := q.Dispatch(store(0, 8))
			l, _ := q.Dispatch(load(1, 0x40, 8))
			Expect(q.LoadAddr(1, 0x100, l).Ready).To(BeFalse())

			q.StoreAddr(2, 0x100, s)
			q.StoreValue(s, 11)
			res, ok := q.LoadUnstall(3)
			Expect(ok).To(BeTrue())
			Expect(res.Value).To(Equal(uint64(11)))
		})
	})

	Describe("Violations", func() {
		It("should report a load that read ahead of an overlapping store", func() {
			_, s := q.Dispatch(store(0, 8))
			l, _ := q.Dispatch(load(1, 4, 4))

			memory.EXPECT().Load(uint64(0x204), 4, false).Return(uint64(5), nil)
			Expect(q.LoadAddr(1, 0x204, l).Ready).To(BeTrue())

			sink.EXPECT().SetLoadViolation(1)
			q.StoreAddr(2, 0x200, s)

			Expect(q.Stats().Violations).To(Equal(uint64(1)))
		})

		It("should not report loads that have not read memory", func() {
			_, s := q.Dispatch(store(0, 8))
			q.Dispatch(load(1, 4, 8))

			q.StoreAddr(2, 0x200, s)
			Expect(q.Stats().Violations).To(BeZero())
		})

		It("should not report older loads", func() {
			l, _ := q.Dispatch(load(0, 4, 8))
			_, s := q.Dispatch(store(1, 8))

			memory.EXPECT().Load(uint64(0x200), 8, false).Return(uint64(5), nil)
			q.LoadAddr(1, 0x200, l)
			q.StoreAddr(2, 0x200, s)

			Expect(q.Stats().Violations).To(BeZero())
		})
	})

	Describe("Cache timing", func() {
		It("should hold a missing load until the line arrives", func() {
			dcache.hit = false
			dcache.ready = 20
			l, _ := q.Dispatch(load(3, 4, 8))

			Expect(q.LoadAddr(5, 0x100, l).Ready).To(BeFalse())
			_, ok := q.LoadUnstall(19)
			Expect(ok).To(BeFalse())

			memory.EXPECT().Load(uint64(0x100), 8, false).Return(uint64(8), nil)
			res, ok := q.LoadUnstall(20)
			Expect(ok).To(BeTrue())
			Expect(res.ALIndex).To(Equal(3))
			Expect(res.Value).To(Equal(uint64(8)))
			Expect(dcache.accesses).To(HaveLen(1))
		})

		It("should retry a load that found no free MSHR", func() {
			dcache.reject = true
			l, _ := q.Dispatch(load(0, 4, 8))

			Expect(q.LoadAddr(1, 0x100, l).Ready).To(BeFalse())
			Expect(q.Stats().Retries).To(Equal(uint64(1)))

			dcache.reject = false
			memory.EXPECT().Load(uint64(0x100), 8, false).Return(uint64(1), nil)
			res, ok := q.LoadUnstall(2)
			Expect(ok).To(BeTrue())
			Expect(res.Value).To(Equal(uint64(1)))
			Expect(dcache.accesses).To(HaveLen(2))
			Expect(dcache.accesses[1].Cycle).To(Equal(uint64(2)))
		})

		It("should unstall one load per call, oldest first", func() {
			dcache.hit = false
			dcache.ready = 10
			l0, _ := q.Dispatch(load(0, 4, 8))
			l1, _ := q.Dispatch(load(1, 8, 8))
			q.LoadAddr(1, 0x100, l0)
			q.LoadAddr(1, 0x200, l1)

			memory.EXPECT().Load(uint64(0x100), 8, false).Return(uint64(1), nil)
			memory.EXPECT().Load(uint64(0x200), 8, false).Return(uint64(2), nil)

			res, ok := q.LoadUnstall(10)
			Expect(ok).To(BeTrue())
			Expect(res.ALIndex).To(Equal(0))

			res, ok = q.LoadUnstall(10)
			Expect(ok).To(BeTrue())
			Expect(res.ALIndex).To(Equal(1))

			_, ok = q.LoadUnstall(10)
			Expect(ok).To(BeFalse())
		})

		It("should send stores to the cache", func() {
			_, s := q.Dispatch(store(0, 8))
			q.StoreAddr(7, 0x300, s)

			Expect(dcache.accesses).To(ConsistOf(
				cache.Request{Cycle: 7, Addr: 0x300, IsStore: true}))
		})
	})

	Describe("Faults", func() {
		It("should report a faulting load as ready", func() {
			l, _ := q.Dispatch(load(0, 4, 8))
			memory.EXPECT().Load(uint64(0x10), 8, false).Return(uint64(0), emu.ErrAccessFault)

			res := q.LoadAddr(1, 0x10, l)
			Expect(res.Ready).To(BeTrue())
			Expect(res.Fault).To(MatchError(emu.ErrAccessFault))
		})
	})

	Describe("Commit", func() {
		It("should write store data to memory at commit", func() {
			_, s := q.Dispatch(store(0, 4))
			q.StoreAddr(1, 0x80, s)
			q.StoreValue(s, 0xabc)

			memory.EXPECT().Store(uint64(0x80), 4, uint64(0xabc)).Return(nil)
			res, err := q.Commit(false)

			Expect(err).NotTo(HaveOccurred())
			Expect(res.AtomicSuccess).To(BeTrue())
			Expect(res.Addr).To(Equal(uint64(0x80)))
			Expect(q.Stats().Stores).To(Equal(uint64(1)))
		})

		It("should return store faults", func() {
			_, s := q.Dispatch(store(0, 8))
			q.StoreAddr(1, 0x84, s)
			q.StoreValue(s, 1)

			memory.EXPECT().Store(uint64(0x84), 8, uint64(1)).Return(emu.ErrMisaligned)
			_, err := q.Commit(false)

			Expect(errors.Is(err, emu.ErrMisaligned)).To(BeTrue())
			loads, stores := q.Len()
			Expect(loads).To(BeZero())
			Expect(stores).To(BeZero())
		})

		It("should drop a store-conditional without a reservation", func() {
			q = lsq.New(config, dcache, memory, sink,
				lsq.WithReservation(fakeReservation{addr: 0x100, valid: true}))

			sc := store(0, 8)
			sc.IsAtomic = true
			_, s := q.Dispatch(sc)
			q.StoreAddr(1, 0x108, s)
			q.StoreValue(s, 1)

			res, err := q.Commit(false)
			Expect(err).NotTo(HaveOccurred())
			Expect(res.AtomicSuccess).To(BeFalse())
			Expect(q.Stats().AtomicFailures).To(Equal(uint64(1)))
		})

		It("should perform a store-conditional that holds its reservation", func() {
			q = lsq.New(config, dcache, memory, sink,
				lsq.WithReservation(fakeReservation{addr: 0x100, valid: true}))

			sc := store(0, 8)
			sc.IsAtomic = true
			_, s := q.Dispatch(sc)
			q.StoreAddr(1, 0x100, s)
			q.StoreValue(s, 1)

			memory.EXPECT().Store(uint64(0x100), 8, uint64(1)).Return(nil)
			res, err := q.Commit(false)
			Expect(err).NotTo(HaveOccurred())
			Expect(res.AtomicSuccess).To(BeTrue())
		})

		It("should count committed load statistics", func() {
			_, s := q.Dispatch(store(0, 8))
			l, _ := q.Dispatch(load(1, 4, 8))
			q.StoreAddr(1, 0x100, s)
			q.StoreValue(s, 2)
			q.LoadAddr(2, 0x100, l)

			memory.EXPECT().Store(uint64(0x100), 8, uint64(2)).Return(nil)
			_, err := q.Commit(false)
			Expect(err).NotTo(HaveOccurred())
			_, err = q.Commit(true)
			Expect(err).NotTo(HaveOccurred())

			stats := q.Stats()
			Expect(stats.Loads).To(Equal(uint64(1)))
			Expect(stats.Forwards).To(Equal(uint64(1)))
		})

		It("should panic when committing from an empty queue", func() {
			Expect(func() { q.Commit(true) }).To(Panic())
		})
	})

	Describe("Recovery", func() {
		It("should discard entries younger than a checkpoint", func() {
			q.Dispatch(load(0, 4, 8))
			chk := q.Checkpoint()
			_, s := q.Dispatch(store(1, 8))
			q.Dispatch(load(2, 8, 8))

			q.Restore(chk)

			loads, stores := q.Len()
			Expect(loads).To(Equal(1))
			Expect(stores).To(BeZero())
			Expect(func() { q.StoreValue(s, 1) }).To(Panic())
		})

		It("should keep a full queue full across a restore", func() {
			config.LQSize = 2
			q = lsq.New(config, dcache, memory, sink)

			q.Dispatch(load(0, 4, 8))
			q.Dispatch(load(1, 8, 8))
			chk := q.Checkpoint()
			q.Restore(chk)

			loads, _ := q.Len()
			Expect(loads).To(Equal(2))
			Expect(q.Stall(1, 0)).To(BeTrue())

			_, err := q.Commit(true)
			Expect(err).NotTo(HaveOccurred())
			q.Dispatch(load(2, 12, 8))
			q.Restore(chk)

			loads, _ = q.Len()
			Expect(loads).To(Equal(1))
		})

		It("should empty both queues on flush", func() {
			q.Dispatch(load(0, 4, 8))
			q.Dispatch(store(1, 8))
			q.Flush()

			loads, stores := q.Len()
			Expect(loads).To(BeZero())
			Expect(stores).To(BeZero())
			Expect(q.Checkpoint()).To(Equal(lsq.Checkpoint{}))
		})
	})
})

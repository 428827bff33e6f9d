package cache_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/ooosim/timing/cache"
)

func load(c *cache.Cache, cycle, addr uint64) (cache.Result, bool) {
	return c.Access(cache.Request{Cycle: cycle, Addr: addr})
}

var _ = Describe("Cache", func() {
	var (
		c      *cache.Cache
		config cache.Config
	)

	BeforeEach(func() {
		// 4 sets, 2 ways, 64B lines: addresses 0x100 apart share a set.
		config = cache.Config{
			NumSets:         4,
			Associativity:   2,
			BlockSize:       64,
			HitLatency:      1,
			MissLatency:     10,
			NumMSHRs:        2,
			MissPorts:       2,
			MissPortLatency: 1,
		}
		c = cache.New(config, nil)
	})

	Describe("Hits and misses", func() {
		It("should miss on a cold cache", func() {
			res, ok := load(c, 0, 0x0)
			Expect(ok).To(BeTrue())
			Expect(res.Hit).To(BeFalse())
			Expect(res.Ready).To(Equal(uint64(12)))

			stats := c.Stats()
			Expect(stats.Loads).To(Equal(uint64(1)))
			Expect(stats.Misses).To(Equal(uint64(1)))
		})

		It("should wait for a line that is still filling", func() {
			load(c, 0, 0x0)

			res, ok := load(c, 5, 0x8)
			Expect(ok).To(BeTrue())
			Expect(res.Hit).To(BeFalse())
			Expect(res.Ready).To(Equal(uint64(12)))
			Expect(c.Stats().PendingHits).To(Equal(uint64(1)))
		})

		It("should hit once the fill has completed", func() {
			load(c, 0, 0x0)

			res, _ := load(c, 11, 0x10)
			Expect(res.Hit).To(BeTrue())
			Expect(res.Ready).To(Equal(uint64(12)))

			res, _ = load(c, 20, 0x3F)
			Expect(res.Hit).To(BeTrue())
			Expect(res.Ready).To(Equal(uint64(21)))
			Expect(c.Stats().Hits).To(Equal(uint64(2)))
		})

		It("should not change state on a probe", func() {
			res, ok := c.Access(cache.Request{Cycle: 3, Addr: 0x40, Probe: true})
			Expect(ok).To(BeTrue())
			Expect(res.Hit).To(BeFalse())
			Expect(res.Ready).To(Equal(uint64(3)))
			Expect(c.Contains(0x40)).To(BeFalse())
			Expect(c.Stats()).To(Equal(cache.Statistics{}))
		})

		It("should skip replacement when not committing", func() {
			_, ok := c.Access(cache.Request{Cycle: 0, Addr: 0x40, NoCommit: true})
			Expect(ok).To(BeTrue())
			Expect(c.Contains(0x40)).To(BeFalse())
			Expect(c.OutstandingMisses(0)).To(Equal(1))
		})
	})

	Describe("MSHRs", func() {
		It("should reject misses beyond the MSHR bound without side effects", func() {
			_, ok := load(c, 0, 0x0)
			Expect(ok).To(BeTrue())
			_, ok = load(c, 0, 0x40)
			Expect(ok).To(BeTrue())

			_, ok = load(c, 0, 0x80)
			Expect(ok).To(BeFalse())
			Expect(c.Contains(0x80)).To(BeFalse())
			Expect(c.OutstandingMisses(0)).To(Equal(2))
			Expect(c.Stats().Rejects).To(Equal(uint64(1)))
			Expect(c.Stats().Misses).To(Equal(uint64(2)))
		})

		It("should reuse an MSHR once its fill is over", func() {
			load(c, 0, 0x0)
			load(c, 0, 0x40)

			res, ok := load(c, 12, 0x80)
			Expect(ok).To(BeTrue())
			Expect(res.Ready).To(Equal(uint64(24)))
			Expect(c.OutstandingMisses(12)).To(Equal(1))
		})

		It("should never exceed the bound under a burst of misses", func() {
			for cycle := uint64(0); cycle < 40; cycle++ {
				for i := uint64(0); i < 4; i++ {
					load(c, cycle, (cycle*4+i)*64)
				}
				Expect(c.OutstandingMisses(cycle)).To(BeNumerically("<=", config.NumMSHRs))
			}
		})
	})

	Describe("Miss ports", func() {
		It("should serialize misses on a single port", func() {
			config.MissPorts = 1
			c = cache.New(config, nil)

			first, _ := load(c, 0, 0x0)
			second, _ := load(c, 0, 0x40)
			Expect(first.Ready).To(Equal(uint64(12)))
			Expect(second.Ready).To(Equal(uint64(13)))
		})
	})

	Describe("Replacement", func() {
		It("should write back a dirty victim before the fill", func() {
			res, _ := c.Access(cache.Request{Cycle: 0, Addr: 0x0, IsStore: true})
			Expect(res.Ready).To(Equal(uint64(12)))
			load(c, 20, 0x100)

			res, ok := load(c, 40, 0x200)
			Expect(ok).To(BeTrue())
			Expect(res.Ready).To(Equal(uint64(62)))
			Expect(c.Contains(0x0)).To(BeFalse())

			stats := c.Stats()
			Expect(stats.Evictions).To(Equal(uint64(1)))
			Expect(stats.Writebacks).To(Equal(uint64(1)))
		})

		It("should wait for a victim that is still filling", func() {
			config.NumSets = 1
			config.Associativity = 1
			c = cache.New(config, nil)

			load(c, 0, 0x0)
			res, ok := load(c, 2, 0x40)
			Expect(ok).To(BeTrue())
			Expect(res.Ready).To(Equal(uint64(22)))
		})

		It("should evict the least recently used line", func() {
			load(c, 0, 0x0)
			load(c, 20, 0x100)
			load(c, 40, 0x0)
			load(c, 60, 0x200)

			Expect(c.Contains(0x0)).To(BeTrue())
			Expect(c.Contains(0x100)).To(BeFalse())
		})
	})

	Describe("Next level", func() {
		It("should recurse fills into the next level", func() {
			l2 := cache.New(cache.Config{
				NumSets:         16,
				Associativity:   4,
				BlockSize:       64,
				HitLatency:      5,
				MissLatency:     20,
				NumMSHRs:        4,
				MissPorts:       4,
				MissPortLatency: 1,
			}, nil)
			c = cache.New(config, l2)

			res, ok := load(c, 0, 0x0)
			Expect(ok).To(BeTrue())
			Expect(res.Ready).To(Equal(uint64(32)))
			Expect(l2.Stats().Misses).To(Equal(uint64(1)))
			Expect(c.Next()).To(BeIdenticalTo(l2))
		})
	})

	Describe("Reset", func() {
		It("should invalidate lines and free MSHRs", func() {
			load(c, 0, 0x0)
			c.Reset()

			Expect(c.Contains(0x0)).To(BeFalse())
			Expect(c.OutstandingMisses(0)).To(BeZero())
			Expect(c.Stats()).To(Equal(cache.Statistics{}))
		})
	})

	Describe("Config", func() {
		It("should describe the default L1D size", func() {
			Expect(cache.DefaultL1DConfig().Size()).To(Equal(64 * 1024))
			Expect(cache.DefaultL1DConfig().Validate()).To(Succeed())
		})

		It("should reject a non power-of-two block size", func() {
			bad := cache.DefaultL2Config()
			bad.BlockSize = 48
			Expect(bad.Validate()).To(HaveOccurred())
		})
	})
})

package strategy_test

import (
	"sync"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/angeloszaimis/instance-balancer/internal/instance"
	"github.com/angeloszaimis/instance-balancer/internal/strategy"
)

var _ = Describe("Roundrobin", func() {
	var (
		strat     *strategy.RoundRobin
		instances []instance.Instance
	)

	BeforeEach(func() {
		strat = strategy.NewRoundRobinStrategy()

		instances = []instance.Instance{
			instance.New("localhost", 8081),
			instance.New("localhost", 8082),
			instance.New("localhost", 8083),
		}
	})

	mustSelect := func(list []instance.Instance) instance.Instance {
		selected, ok := strat.SelectInstance(list)
		Expect(ok).To(BeTrue())
		return selected
	}

	Describe("SelectInstance", func() {
		Context("with a stable list", func() {
			It("should cycle through instances in order", func() {
				Expect(mustSelect(instances)).To(Equal(instances[0]))
				Expect(mustSelect(instances)).To(Equal(instances[1]))
				Expect(mustSelect(instances)).To(Equal(instances[2]))
				Expect(mustSelect(instances)).To(Equal(instances[0]))
			})

			It("should distribute load evenly", func() {
				counts := make(map[string]int)
				for i := 0; i < 300; i++ {
					counts[mustSelect(instances).HostPort()]++
				}
				Expect(counts["localhost:8081"]).To(Equal(100))
				Expect(counts["localhost:8082"]).To(Equal(100))
				Expect(counts["localhost:8083"]).To(Equal(100))
			})

			It("should return each instance once per window starting at the cursor", func() {
				mustSelect(instances)

				window := map[string]int{}
				for i := 0; i < len(instances); i++ {
					window[mustSelect(instances).HostPort()]++
				}
				Expect(window).To(HaveLen(3))
				for _, count := range window {
					Expect(count).To(Equal(1))
				}
			})
		})

		Context("with an empty list", func() {
			It("should report no instance", func() {
				_, ok := strat.SelectInstance([]instance.Instance{})
				Expect(ok).To(BeFalse())
			})

			It("should not advance the cursor", func() {
				strat.SelectInstance(nil)
				Expect(strat.Cursor()).To(Equal(uint64(0)))
			})
		})

		Context("when the list shrinks between calls", func() {
			It("should apply the existing cursor to the new length", func() {
				Expect(mustSelect(instances)).To(Equal(instances[0]))
				Expect(mustSelect(instances)).To(Equal(instances[1]))

				shrunk := []instance.Instance{instances[0], instances[2]}
				// cursor is 2, 2 mod 2 = 0
				Expect(mustSelect(shrunk)).To(Equal(instances[0]))
				Expect(strat.Cursor()).To(Equal(uint64(3)))
			})
		})

		Context("under concurrent calls", func() {
			It("should hand out distinct cursor values", func() {
				const callers = 300

				var (
					wg    sync.WaitGroup
					mutex sync.Mutex
				)
				counts := make(map[string]int)

				for i := 0; i < callers; i++ {
					wg.Add(1)
					go func() {
						defer GinkgoRecover()
						defer wg.Done()
						selected, ok := strat.SelectInstance(instances)
						Expect(ok).To(BeTrue())
						mutex.Lock()
						counts[selected.HostPort()]++
						mutex.Unlock()
					}()
				}
				wg.Wait()

				Expect(strat.Cursor()).To(Equal(uint64(callers)))
				Expect(counts["localhost:8081"]).To(Equal(100))
				Expect(counts["localhost:8082"]).To(Equal(100))
				Expect(counts["localhost:8083"]).To(Equal(100))
			})
		})
	})
})

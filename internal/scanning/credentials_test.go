package scanning

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("CredentialPool", func() {
	Describe("ParseCredentialPool", func() {
		It("splits a comma-separated list and drops blanks", func() {
			pool, err := ParseCredentialPool(" key-a, ,key-b,, key-c ")
			Expect(err).NotTo(HaveOccurred())
			Expect(pool.Keys()).To(Equal([]string{"key-a", "key-b", "key-c"}))
			Expect(pool.Len()).To(Equal(3))
		})

		It("rejects an empty list", func() {
			_, err := ParseCredentialPool(" , ")
			Expect(err).To(MatchError(ErrNoCredentials))
		})
	})

	Describe("Keys", func() {
		It("returns a copy", func() {
			pool, err := NewCredentialPool([]string{"a", "b"})
			Expect(err).NotTo(HaveOccurred())
			keys := pool.Keys()
			keys[0] = "changed"
			Expect(pool.Keys()).To(Equal([]string{"a", "b"}))
		})
	})

	Describe("Pick", func() {
		var pool *CredentialPool

		BeforeEach(func() {
			var err error
			pool, err = NewCredentialPool([]string{"a", "b", "c"})
			Expect(err).NotTo(HaveOccurred())
		})

		It("uses the injected selector", func() {
			Expect(pool.Pick(FixedSelector(1))).To(Equal("b"))
			Expect(pool.Pick(FixedSelector(4))).To(Equal("b"))
			Expect(pool.Pick(FixedSelector(-1))).To(Equal("c"))
		})

		It("only ever picks keys from the pool with the random selector", func() {
			seen := map[string]bool{}
			for i := 0; i < 300; i++ {
				seen[pool.Pick(RandomSelector{})] = true
			}
			Expect(seen).To(HaveLen(3))
			Expect(seen).To(HaveKey("a"))
			Expect(seen).To(HaveKey("b"))
			Expect(seen).To(HaveKey("c"))
		})
	})
})

// Copyright 2018 Dan Jacques. All rights reserved.
// Use of this source code is governed under the MIT License
// that can be found in the LICENSE file.

package bufferpool

import (
	"testing"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
)

func TestBufferPool(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Buffer Pool")
}

var _ = Describe("Pool", func() {
	It("hands out zeroed buffers of the configured size", func() {
		bp := Pool{Size: 64}

		b := bp.Get()
		Expect(b.Bytes()).To(HaveLen(64))
		b.Bytes()[3] = 0xFF
		b.Release()

		b = bp.Get()
		Expect(b.Bytes()).To(HaveLen(64))
		Expect(b.Bytes()[3]).To(Equal(byte(0)))
		b.Release()
	})

	It("panics when a buffer is released twice", func() {
		bp := Pool{Size: 8}
		b := bp.Get()
		b.Release()
		Expect(b.Release).To(Panic())
	})
})

// Copyright 2018 Dan Jacques. All rights reserved.
// Use of this source code is governed under the MIT License
// that can be found in the LICENSE file.

package protostream

import (
	"bytes"
	"io"
	"testing"
	"time"

	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/durationpb"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
)

func TestProtoStream(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Testing protostream")
}

var _ = Describe("End-to-End Encode/Decode", func() {
	It("can encode and then decode protobufs", func() {
		var buf bytes.Buffer

		p0, err := structpb.NewStruct(map[string]interface{}{
			"kind":   "obituary",
			"victim": 3,
			"tags":   []interface{}{"foo", "bar"},
		})
		Expect(err).ToNot(HaveOccurred())
		p1 := &emptypb.Empty{}
		p2 := durationpb.New(time.Minute)

		enc := NewEncoder(&buf)
		for _, pb := range []proto.Message{p0, p1, p2} {
			Expect(enc.Write(pb)).To(Succeed())
		}
		Expect(enc.Count).To(Equal(int64(buf.Len())))

		dec := NewDecoder(bytes.NewReader(buf.Bytes()))
		mustDecode := func(pb, expected proto.Message) {
			Expect(dec.Read(pb)).To(Succeed())
			Expect(proto.Equal(pb, expected)).To(BeTrue(),
				"messages are not equal (%v != %v)", pb, expected)
		}
		mustDecode(&structpb.Struct{}, p0)
		mustDecode(&emptypb.Empty{}, p1)
		mustDecode(&durationpb.Duration{}, p2)

		Expect(dec.Read(&emptypb.Empty{})).To(Equal(io.EOF))
	})

	It("rejects truncated and oversized messages", func() {
		var buf bytes.Buffer
		Expect(NewEncoder(&buf).Write(durationpb.New(time.Hour))).To(Succeed())

		data := buf.Bytes()
		dec := NewDecoder(bytes.NewReader(data[:len(data)-1]))
		Expect(dec.Read(&durationpb.Duration{})).ToNot(Succeed())

		dec = NewDecoder(bytes.NewReader(data))
		dec.MaxSize = 1
		Expect(dec.Read(&durationpb.Duration{})).ToNot(Succeed())
	})
})

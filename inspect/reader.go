package inspect

import (
	"bufio"
	"bytes"
	"context"
	"io"
	"os"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"
	"github.com/pkg/errors"
)

// First four bytes of a pcapng section header block.
var pcapngMagic = []byte{0x0a, 0x0d, 0x0d, 0x0a}

type PacketReader interface {
	Packets(ctx context.Context) (<-chan gopacket.Packet, error)
}

type packetDataSource interface {
	gopacket.PacketDataSource
	LinkType() layers.LinkType
}

// Reads packets from a pcap or pcapng capture.
type FileReader struct {
	name   string
	source io.Reader
}

func NewFileReader(name string) *FileReader {
	return &FileReader{name: name}
}

// Reads a capture that is already open. The caller closes r.
func NewStreamReader(r io.Reader) *FileReader {
	return &FileReader{name: "stream", source: r}
}

func (f *FileReader) Packets(ctx context.Context) (<-chan gopacket.Packet, error) {
	var closer io.Closer
	source := f.source
	if source == nil {
		file, err := os.Open(f.name)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to open %s", f.name)
		}
		source, closer = file, file
	}

	packetData, err := openCapture(source)
	if err != nil {
		if closer != nil {
			closer.Close()
		}
		return nil, errors.Wrapf(err, "failed to read capture header of %s", f.name)
	}

	out := make(chan gopacket.Packet, 10)
	go func() {
		if closer != nil {
			defer closer.Close()
		}
		defer close(out)

		packetSource := gopacket.NewPacketSource(packetData, packetData.LinkType())
		for packet := range packetSource.Packets() {
			select {
			case <-ctx.Done():
				return
			case out <- packet:
			}
		}
	}()

	return out, nil
}

func openCapture(r io.Reader) (packetDataSource, error) {
	br := bufio.NewReader(r)
	magic, err := br.Peek(len(pcapngMagic))
	if err != nil {
		return nil, err
	}
	if bytes.Equal(magic, pcapngMagic) {
		return pcapgo.NewNgReader(br, pcapgo.DefaultNgReaderOptions)
	}
	return pcapgo.NewReader(br)
}

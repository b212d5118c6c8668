package audio

import (
	"bytes"
	"context"
	"encoding/binary"
	"net"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/pion/rtp"
	"github.com/stretchr/testify/require"
)

// ramp returns n consecutive sample values starting at from.
func ramp(from, n int) []int16 {
	out := make([]int16, n)
	for i := range out {
		out[i] = int16(from + i)
	}

	return out
}

// TestBlocker_SplitsAndStamps emits full blocks only, stamped by the sample clock.
func TestBlocker_SplitsAndStamps(t *testing.T) {
	t.Parallel()

	start := time.Unix(1000, 0)

	var blocks []Block

	b := NewBlocker(4, SampleClock(start, 8))
	emit := func(block Block) { blocks = append(blocks, block) }

	b.Push(ramp(0, 3), emit)
	require.Empty(t, blocks)
	require.Equal(t, 3, b.Pending())

	b.Push(ramp(3, 7), emit)
	require.Len(t, blocks, 2)
	require.Equal(t, ramp(0, 4), blocks[0].Samples)
	require.Equal(t, ramp(4, 4), blocks[1].Samples)
	require.Equal(t, start.Add(500*time.Millisecond), blocks[0].At)
	require.Equal(t, start.Add(time.Second), blocks[1].At)
	require.Equal(t, 2, b.Pending())
}

// TestReaderSource_DecodesLittleEndian streams a file and drops the trailing partial block.
func TestReaderSource_DecodesLittleEndian(t *testing.T) {
	t.Parallel()

	var raw bytes.Buffer
	for _, v := range []int16{1, -1, 32767, -32768, 256, 7, 9} {
		require.NoError(t, binary.Write(&raw, binary.LittleEndian, v))
	}

	path := filepath.Join(t.TempDir(), "tones.raw")
	require.NoError(t, os.WriteFile(path, raw.Bytes(), 0o600))

	src, err := OpenFile(path, 3, 3)
	require.NoError(t, err)

	defer func() {
		require.NoError(t, src.Close())
	}()

	var blocks []Block

	require.NoError(t, src.Stream(context.Background(), func(b Block) { blocks = append(blocks, b) }))
	require.Len(t, blocks, 2)
	require.Equal(t, []int16{1, -1, 32767}, blocks[0].Samples)
	require.Equal(t, []int16{-32768, 256, 7}, blocks[1].Samples)
	require.Equal(t, time.Second, blocks[1].At.Sub(blocks[0].At))
}

// slowReader hands out one byte per read to exercise odd-length carries.
type slowReader struct {
	data []byte
}

func (r *slowReader) Read(p []byte) (int, error) {
	if len(r.data) == 0 {
		return 0, context.Canceled
	}

	p[0] = r.data[0]
	r.data = r.data[1:]

	return 1, nil
}

// TestReaderSource_OddReadsAndErrors reassembles split samples and reports read failures.
func TestReaderSource_OddReadsAndErrors(t *testing.T) {
	t.Parallel()

	src := NewReaderSource(&slowReader{data: []byte{0x34, 0x12, 0xff, 0xff}}, 2, WallClock())

	var blocks []Block

	err := src.Stream(context.Background(), func(b Block) { blocks = append(blocks, b) })
	require.ErrorIs(t, err, context.Canceled)
	require.Len(t, blocks, 1)
	require.Equal(t, []int16{0x1234, -1}, blocks[0].Samples)
	require.NoError(t, src.Close())
}

// TestOpenFile_Missing surfaces a resource error.
func TestOpenFile_Missing(t *testing.T) {
	t.Parallel()

	_, err := OpenFile(filepath.Join(t.TempDir(), "absent.raw"), 4096, 44100)
	require.ErrorIs(t, err, ErrSourceUnavailable)
}

// TestRTPSource_ReceivesL16 sends RTP packets over loopback and filters by SSRC.
func TestRTPSource_ReceivesL16(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	src, err := ListenRTP(ctx, "127.0.0.1:0", 0xCAFE, 4)
	require.NoError(t, err)

	defer func() {
		require.NoError(t, src.Close())
	}()

	blocks := make(chan Block, 4)
	streamDone := make(chan error, 1)

	go func() {
		streamDone <- src.Stream(ctx, func(b Block) { blocks <- b })
	}()

	conn, err := net.Dial("udp4", src.LocalAddr().String())
	require.NoError(t, err)

	defer conn.Close()

	send := func(ssrc uint32, seq uint16, payload []byte) {
		packet := &rtp.Packet{
			Header: rtp.Header{
				Version:        2,
				PayloadType:    96,
				SequenceNumber: seq,
				Timestamp:      uint32(seq) * 2,
				SSRC:           ssrc,
			},
			Payload: payload,
		}

		data, err := packet.Marshal()
		require.NoError(t, err)

		_, err = conn.Write(data)
		require.NoError(t, err)
	}

	send(0xBEEF, 1, []byte{0x7f, 0xff, 0x7f, 0xff, 0x7f, 0xff, 0x7f, 0xff})
	send(0xCAFE, 2, []byte{0x00, 0x01, 0xff, 0xfe})
	send(0xCAFE, 3, []byte{0x01, 0x00, 0x80, 0x00})

	select {
	case b := <-blocks:
		require.Equal(t, []int16{1, -2, 256, -32768}, b.Samples)
	case <-time.After(2 * time.Second):
		t.Fatal("no block received")
	}

	cancel()

	select {
	case err := <-streamDone:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("stream did not stop")
	}
}

// TestParseDevices keeps capture-capable devices only.
func TestParseDevices(t *testing.T) {
	t.Parallel()

	listing := strings.Join([]string{
		"00-00: ALC892 Analog : ALC892 Analog : playback 1 : capture 1",
		"00-01: ALC892 Digital : ALC892 Digital : playback 1",
		"01-00: USB Audio : USB Audio : capture 1",
		"garbage",
	}, "\n")

	devices, err := ParseDevices(strings.NewReader(listing))
	require.NoError(t, err)
	require.Equal(t, []Device{
		{Index: 0, ID: "hw:0,0", Name: "ALC892 Analog"},
		{Index: 1, ID: "hw:1,0", Name: "USB Audio"},
	}, devices)
	require.Equal(t, "1\t- USB Audio (hw:1,0)", devices[1].String())
}

package index

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/klauspost/compress/zstd"
	"github.com/minio/highwayhash"
	"github.com/viant/bintly"
	"github.com/viant/seqindex/bktree"
)

// Snapshot layout:
//
//	[magic:4 "SQIX"][version:1][payload: zstd(bintly tree)][checksum:8 LE highwayhash64]
//
// The checksum covers everything before it.
const (
	formatVersion = 1
	headerSize    = 5
	checksumSize  = 8
)

var (
	magic       = []byte("SQIX")
	checksumKey = []byte("0123456789ABCDEF0123456789ABCDEF")
)

// Encode serialises tree into the snapshot format.
func Encode(tree *bktree.Tree) ([]byte, error) {
	writers := bintly.NewWriters()
	writer := writers.Get()
	defer writers.Put(writer)
	if err := tree.EncodeBinary(writer); err != nil {
		return nil, err
	}
	encoder, err := zstd.NewWriter(nil)
	if err != nil {
		return nil, err
	}
	defer encoder.Close()

	buffer := bytes.Buffer{}
	buffer.Write(magic)
	buffer.WriteByte(formatVersion)
	buffer.Write(encoder.EncodeAll(writer.Bytes(), nil))
	sum, err := checksum(buffer.Bytes())
	if err != nil {
		return nil, err
	}
	var trailer [checksumSize]byte
	binary.LittleEndian.PutUint64(trailer[:], sum)
	buffer.Write(trailer[:])
	return buffer.Bytes(), nil
}

// Decode parses snapshot data produced by Encode.
func Decode(data []byte) (*bktree.Tree, error) {
	if len(data) < headerSize+checksumSize {
		return nil, fmt.Errorf("%w: %d bytes", ErrCorrupt, len(data))
	}
	if !bytes.Equal(data[:len(magic)], magic) {
		return nil, fmt.Errorf("%w: bad magic", ErrCorrupt)
	}
	if version := data[len(magic)]; version != formatVersion {
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedVersion, version)
	}
	body := data[:len(data)-checksumSize]
	want := binary.LittleEndian.Uint64(data[len(data)-checksumSize:])
	got, err := checksum(body)
	if err != nil {
		return nil, err
	}
	if want != got {
		return nil, ErrChecksum
	}
	decoder, err := zstd.NewReader(nil)
	if err != nil {
		return nil, err
	}
	defer decoder.Close()
	payload, err := decoder.DecodeAll(body[headerSize:], nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}

	readers := bintly.NewReaders()
	reader := readers.Get()
	defer readers.Put(reader)
	if err := reader.FromBytes(payload); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	tree := bktree.New()
	if err := tree.DecodeBinary(reader); err != nil {
		return nil, err
	}
	return tree, nil
}

func checksum(data []byte) (uint64, error) {
	h, err := highwayhash.New64(checksumKey)
	if err != nil {
		return 0, err
	}
	if _, err = h.Write(data); err != nil {
		return 0, err
	}
	return h.Sum64(), nil
}

// Copyright (c) 2017-2018 The nox developers

// Package flatfile stores opaque records in append-only rotating files.
//
// Block bytes and block undo bytes are kept out of the key-value store and
// addressed by a Pos instead.  A record on disk is laid out as
//
//	<payload length uint32 LE><payload><blake256(salt || payload)>
//
// The salt is supplied by the caller on both write and read.  Undo records
// are salted with the hash of the parent block so an undo record can never be
// replayed against the wrong block.
package flatfile

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"io/ioutil"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/dchest/blake256"
	"github.com/pkg/errors"
)

const (
	// DefaultMaxFileSize is the size a file may reach before writes rotate
	// to the next file.  Offsets are uint32 so it must stay below 4 GiB.
	DefaultMaxFileSize uint32 = 128 * 1024 * 1024

	lengthSize   = 4
	checksumSize = blake256.Size

	fileExt = ".fdb"
)

var (
	byteOrder = binary.LittleEndian

	// ErrCorrupt is returned when a record fails its checksum or runs past
	// the end of its file.
	ErrCorrupt = errors.New("flatfile: corrupt record")

	// ErrClosed is returned by operations on a closed store.
	ErrClosed = errors.New("flatfile: store is closed")
)

// Pos addresses a record by file number and byte offset.
type Pos struct {
	File   int32
	Offset uint32
}

// NullPos is the position of a record that has not been written.
var NullPos = Pos{File: -1}

// IsNull reports whether the position refers to no record.
func (p Pos) IsNull() bool {
	return p.File < 0
}

func (p Pos) String() string {
	if p.IsNull() {
		return "null"
	}
	return fmt.Sprintf("%d:%d", p.File, p.Offset)
}

// RecordSize returns the number of bytes a payload of n bytes occupies on
// disk.
func RecordSize(n int) uint32 {
	return uint32(lengthSize + n + checksumSize)
}

// Store is a set of rotating append-only files sharing a name prefix.
type Store struct {
	mtx sync.Mutex

	dir         string
	prefix      string
	maxFileSize uint32

	current       *os.File
	currentNum    int32
	currentOffset uint32

	// Read-only handles of files other than the current one.
	readers map[int32]*os.File

	closed bool
}

// Open opens the store of files named prefix in dir, creating dir as
// needed.  Writes continue at the end of the highest numbered file.
func Open(dir, prefix string, maxFileSize uint32) (*Store, error) {
	if maxFileSize == 0 {
		maxFileSize = DefaultMaxFileSize
	}
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, errors.Wrapf(err, "create flat file dir %s", dir)
	}
	num, offset, err := findCurrentLocation(dir, prefix)
	if err != nil {
		return nil, err
	}
	s := &Store{
		dir:           dir,
		prefix:        prefix,
		maxFileSize:   maxFileSize,
		currentNum:    num,
		currentOffset: offset,
		readers:       make(map[int32]*os.File),
	}
	if err := s.openCurrent(); err != nil {
		return nil, err
	}
	return s, nil
}

// findCurrentLocation scans dir for the files of the store and returns the
// highest file number along with its size.
func findCurrentLocation(dir, prefix string) (int32, uint32, error) {
	infos, err := ioutil.ReadDir(dir)
	if err != nil {
		return 0, 0, errors.Wrapf(err, "scan flat file dir %s", dir)
	}
	var nums []int
	sizes := make(map[int]int64)
	for _, fi := range infos {
		name := fi.Name()
		if fi.IsDir() || !strings.HasPrefix(name, prefix) || !strings.HasSuffix(name, fileExt) {
			continue
		}
		n, err := strconv.Atoi(strings.TrimSuffix(strings.TrimPrefix(name, prefix), fileExt))
		if err != nil || n < 0 {
			continue
		}
		nums = append(nums, n)
		sizes[n] = fi.Size()
	}
	if len(nums) == 0 {
		return 0, 0, nil
	}
	sort.Ints(nums)
	last := nums[len(nums)-1]
	return int32(last), uint32(sizes[last]), nil
}

func (s *Store) filePath(num int32) string {
	return filepath.Join(s.dir, fmt.Sprintf("%s%05d%s", s.prefix, num, fileExt))
}

func (s *Store) openCurrent() error {
	f, err := os.OpenFile(s.filePath(s.currentNum), os.O_RDWR|os.O_CREATE, 0600)
	if err != nil {
		return errors.Wrapf(err, "open flat file %d", s.currentNum)
	}
	s.current = f
	return nil
}

// Write appends a record and returns its position.
func (s *Store) Write(salt, payload []byte) (Pos, error) {
	s.mtx.Lock()
	defer s.mtx.Unlock()

	if s.closed {
		return NullPos, ErrClosed
	}
	size := RecordSize(len(payload))
	if s.currentOffset > 0 && uint64(s.currentOffset)+uint64(size) > uint64(s.maxFileSize) {
		if err := s.rotate(); err != nil {
			return NullPos, err
		}
	}

	var buf bytes.Buffer
	buf.Grow(int(size))
	var lenBuf [lengthSize]byte
	byteOrder.PutUint32(lenBuf[:], uint32(len(payload)))
	buf.Write(lenBuf[:])
	buf.Write(payload)
	buf.Write(checksum(salt, payload))

	pos := Pos{File: s.currentNum, Offset: s.currentOffset}
	if _, err := s.current.WriteAt(buf.Bytes(), int64(s.currentOffset)); err != nil {
		return NullPos, errors.Wrapf(err, "write flat file %d", s.currentNum)
	}
	s.currentOffset += size
	return pos, nil
}

// rotate syncs and closes the current file and starts the next one.
func (s *Store) rotate() error {
	if err := s.current.Sync(); err != nil {
		return errors.Wrapf(err, "sync flat file %d", s.currentNum)
	}
	if err := s.current.Close(); err != nil {
		return errors.Wrapf(err, "close flat file %d", s.currentNum)
	}
	s.currentNum++
	s.currentOffset = 0
	return s.openCurrent()
}

// Read returns the payload of the record at pos after verifying its
// checksum against salt.
func (s *Store) Read(pos Pos, salt []byte) ([]byte, error) {
	s.mtx.Lock()
	defer s.mtx.Unlock()

	if s.closed {
		return nil, ErrClosed
	}
	if pos.IsNull() || pos.File > s.currentNum ||
		(pos.File == s.currentNum && pos.Offset >= s.currentOffset) {
		return nil, errors.Wrapf(ErrCorrupt, "no record at %v", pos)
	}
	f, err := s.reader(pos.File)
	if err != nil {
		return nil, err
	}

	var lenBuf [lengthSize]byte
	if _, err := f.ReadAt(lenBuf[:], int64(pos.Offset)); err != nil {
		return nil, readError(err, pos)
	}
	n := byteOrder.Uint32(lenBuf[:])
	data := make([]byte, int(n)+checksumSize)
	if _, err := f.ReadAt(data, int64(pos.Offset)+lengthSize); err != nil {
		return nil, readError(err, pos)
	}
	payload, sum := data[:n], data[n:]
	if !bytes.Equal(sum, checksum(salt, payload)) {
		return nil, errors.Wrapf(ErrCorrupt, "checksum mismatch at %v", pos)
	}
	return payload, nil
}

func (s *Store) reader(num int32) (*os.File, error) {
	if num == s.currentNum {
		return s.current, nil
	}
	if f, ok := s.readers[num]; ok {
		return f, nil
	}
	f, err := os.Open(s.filePath(num))
	if err != nil {
		return nil, errors.Wrapf(err, "open flat file %d", num)
	}
	s.readers[num] = f
	return f, nil
}

func readError(err error, pos Pos) error {
	if err == io.EOF || err == io.ErrUnexpectedEOF {
		return errors.Wrapf(ErrCorrupt, "short record at %v", pos)
	}
	return errors.Wrapf(err, "read flat file at %v", pos)
}

// CurrentFile returns the number of the file new records go to.
func (s *Store) CurrentFile() int32 {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	return s.currentNum
}

// Sync flushes the current file to stable storage.
func (s *Store) Sync() error {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	if s.closed {
		return ErrClosed
	}
	if err := s.current.Sync(); err != nil {
		return errors.Wrapf(err, "sync flat file %d", s.currentNum)
	}
	return nil
}

// Close syncs and closes every open file.
func (s *Store) Close() error {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	for _, f := range s.readers {
		f.Close()
	}
	if err := s.current.Sync(); err != nil {
		s.current.Close()
		return errors.Wrapf(err, "sync flat file %d", s.currentNum)
	}
	return s.current.Close()
}

func checksum(salt, payload []byte) []byte {
	h := blake256.New()
	h.Write(salt)
	h.Write(payload)
	return h.Sum(nil)
}

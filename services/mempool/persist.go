// Copyright (c) 2017-2018 The nox developers

package mempool

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/noxproject/dposd/core/types"
	"github.com/pkg/errors"
)

const (
	MempoolFileName = "mempool.dat"
	MempoolVersion  = 0x01
)

var byteOrder = binary.LittleEndian

// Save writes every pooled transaction to the mempool file in dir and
// returns how many were written.
func (mp *TxPool) Save(dir string) (int, error) {
	txds := mp.TxDescs()
	if len(txds) == 0 {
		log.Info("There are no transactions to save in mempool")
		return 0, nil
	}

	path := filepath.Join(dir, MempoolFileName)
	outFile, err := os.Create(path)
	if err != nil {
		return 0, err
	}
	defer outFile.Close()

	w := bufio.NewWriter(outFile)
	if err := w.WriteByte(MempoolVersion); err != nil {
		return 0, err
	}
	var count [4]byte
	byteOrder.PutUint32(count[:], uint32(len(txds)))
	if _, err := w.Write(count[:]); err != nil {
		return 0, err
	}
	for _, txd := range txds {
		if err := encodeTxData(w, txd.Tx, txd.Added); err != nil {
			return 0, errors.Wrapf(err, "mempool persist %v", txd.Tx.TxHash())
		}
	}
	if err := w.Flush(); err != nil {
		return 0, err
	}
	log.Info("Mempool saved", "txs", len(txds), "file", path)
	return len(txds), nil
}

// Load offers the transactions of the mempool file in dir to the pool and
// removes the file.  Transactions the pool no longer accepts are skipped.
// A missing file is not an error.
func (mp *TxPool) Load(dir string) error {
	path := filepath.Join(dir, MempoolFileName)
	inFile, err := os.Open(path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return err
	}
	defer os.Remove(path)
	defer inFile.Close()

	r := bufio.NewReader(inFile)
	version, err := r.ReadByte()
	if err != nil {
		return err
	}
	if version != MempoolVersion {
		return errors.Errorf("mempool file version %d, expected %d",
			version, MempoolVersion)
	}
	var count [4]byte
	if _, err := io.ReadFull(r, count[:]); err != nil {
		return err
	}
	txNum := byteOrder.Uint32(count[:])

	added := 0
	for i := uint32(0); i < txNum; i++ {
		tx, _, err := decodeTxData(r)
		if err != nil {
			return errors.Wrapf(err, "mempool load tx %d of %d", i, txNum)
		}
		if _, err := mp.MaybeAcceptTransaction(tx); err != nil {
			log.Debug("Dropped saved transaction", "hash", tx.TxHash(), "err", err)
			continue
		}
		added++
	}
	log.Info("Mempool loaded", "added", added, "saved", txNum)
	return nil
}

// encodeTxData writes the length-prefixed transaction followed by the unix
// time it entered the pool.
func encodeTxData(w io.Writer, tx types.Transaction, added time.Time) error {
	b := types.TxBytes(tx)
	var size [4]byte
	byteOrder.PutUint32(size[:], uint32(len(b)))
	if _, err := w.Write(size[:]); err != nil {
		return err
	}
	if _, err := w.Write(b); err != nil {
		return err
	}
	var ts [8]byte
	byteOrder.PutUint64(ts[:], uint64(added.Unix()))
	_, err := w.Write(ts[:])
	return err
}

func decodeTxData(r io.Reader) (types.Transaction, time.Time, error) {
	var size [4]byte
	if _, err := io.ReadFull(r, size[:]); err != nil {
		return nil, time.Time{}, err
	}
	txLen := byteOrder.Uint32(size[:])
	if txLen > types.MaxBlockPayload {
		return nil, time.Time{}, errors.Errorf("transaction of %d bytes", txLen)
	}
	b := make([]byte, txLen)
	if _, err := io.ReadFull(r, b); err != nil {
		return nil, time.Time{}, err
	}
	tx, err := types.ReadTransaction(bytes.NewReader(b))
	if err != nil {
		return nil, time.Time{}, err
	}
	var ts [8]byte
	if _, err := io.ReadFull(r, ts[:]); err != nil {
		return nil, time.Time{}, err
	}
	return tx, time.Unix(int64(byteOrder.Uint64(ts[:])), 0), nil
}

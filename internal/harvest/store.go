package harvest

import (
	"errors"
	"net/netip"
	"os"
	"path/filepath"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/cenkalti/dhtcrawler/internal/logger"
	"github.com/cenkalti/dhtcrawler/internal/nodeid"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/mitchellh/go-homedir"
	bolt "go.etcd.io/bbolt"
)

// DefaultCacheSize is the number of recent observations remembered to skip duplicate writes.
const DefaultCacheSize = 4096

// DefaultQueueSize is the number of observations waiting to be written before new ones are dropped.
const DefaultQueueSize = 1024

// maxBatch bounds the number of observations written in one transaction.
const maxBatch = 256

var infoHashesBucket = []byte("info_hashes")

// Keys inside the bucket of an info hash.
var Keys = struct {
	FirstSeen []byte
	LastSeen  []byte
	GetPeers  []byte
	Announces []byte
	Peers     []byte
}{
	FirstSeen: []byte("first_seen"),
	LastSeen:  []byte("last_seen"),
	GetPeers:  []byte("get_peers"),
	Announces: []byte("announces"),
	Peers:     []byte("peers"),
}

// Peer sources.
const (
	SourceAnnounce = "announce"
	SourceValues   = "values"
)

// Record is what the Store knows about an info hash.
type Record struct {
	InfoHash  nodeid.ID
	FirstSeen time.Time
	LastSeen  time.Time
	// GetPeers is the number of distinct nodes that asked for peers of this info hash.
	GetPeers int
	// Announces is the number of distinct peers announced for this info hash.
	Announces int
	// Peers maps peer addresses to how we learned about them.
	Peers map[netip.AddrPort]string
}

// Store is a Harvester that saves info hashes and peers into a Bolt database.
//
// Observations are queued and written by a background goroutine in batches,
// so the Harvester methods never wait for the disk. When the queue is full
// new observations are dropped and counted.
type Store struct {
	db      *bolt.DB
	seen    *lru.Cache[string, struct{}]
	log     logger.Logger
	nowFn   func() time.Time
	queue   chan observation
	dropped atomic.Int64
	closeC  chan struct{}
	doneC   chan struct{}

	// beforeWrite is called by the writer goroutine after it takes the first observation of a batch.
	beforeWrite func()
}

type observation struct {
	infoHash nodeid.ID
	at       time.Time
	fn       func(b *bolt.Bucket) error
	// flushed is closed after every observation queued before it has been written.
	flushed chan struct{}
}

var _ Harvester = (*Store)(nil)

// Open opens or creates the database at path. "~" is expanded to the home directory.
func Open(path string, cacheSize int) (*Store, error) {
	return open(path, cacheSize, DefaultQueueSize, nil)
}

func open(path string, cacheSize, queueSize int, beforeWrite func()) (*Store, error) {
	path, err := homedir.Expand(path)
	if err != nil {
		return nil, err
	}
	if cacheSize <= 0 {
		cacheSize = DefaultCacheSize
	}
	seen, err := lru.New[string, struct{}](cacheSize)
	if err != nil {
		return nil, err
	}
	if err = os.MkdirAll(filepath.Dir(path), 0750); err != nil {
		return nil, err
	}
	db, err := bolt.Open(path, 0640, &bolt.Options{Timeout: time.Second})
	if err == bolt.ErrTimeout {
		return nil, errors.New("harvest database is locked by another process")
	} else if err != nil {
		return nil, err
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err2 := tx.CreateBucketIfNotExists(infoHashesBucket)
		return err2
	})
	if err != nil {
		db.Close()
		return nil, err
	}
	s := &Store{
		db:          db,
		seen:        seen,
		log:         logger.New("harvest store"),
		nowFn:       time.Now,
		queue:       make(chan observation, queueSize),
		closeC:      make(chan struct{}),
		doneC:       make(chan struct{}),
		beforeWrite: beforeWrite,
	}
	go s.run()
	return s, nil
}

// Close writes the queued observations and closes the database.
func (s *Store) Close() error {
	close(s.closeC)
	<-s.doneC
	return s.db.Close()
}

// Flush blocks until every observation queued before the call has been written.
func (s *Store) Flush() {
	done := make(chan struct{})
	select {
	case s.queue <- observation{flushed: done}:
	case <-s.closeC:
		return
	}
	select {
	case <-done:
	case <-s.doneC:
	}
}

// Dropped returns the number of observations dropped because the queue was full.
func (s *Store) Dropped() int64 {
	return s.dropped.Load()
}

func (s *Store) run() {
	defer close(s.doneC)
	for {
		select {
		case o := <-s.queue:
			s.writeBatch(s.collect(o))
		case <-s.closeC:
			for {
				select {
				case o := <-s.queue:
					s.writeBatch(s.collect(o))
				default:
					return
				}
			}
		}
	}
}

// collect returns first and the observations already waiting behind it.
func (s *Store) collect(first observation) []observation {
	if s.beforeWrite != nil {
		s.beforeWrite()
	}
	batch := []observation{first}
	for len(batch) < maxBatch {
		select {
		case o := <-s.queue:
			batch = append(batch, o)
		default:
			return batch
		}
	}
	return batch
}

func (s *Store) writeBatch(batch []observation) {
	err := s.db.Update(func(tx *bolt.Tx) error {
		root := tx.Bucket(infoHashesBucket)
		for _, o := range batch {
			if o.fn == nil {
				continue
			}
			if err := writeObservation(root, o); err != nil {
				s.log.Errorf("cannot write info hash %s: %s", o.infoHash, err)
			}
		}
		return nil
	})
	if err != nil {
		s.log.Errorf("cannot write %d observations: %s", len(batch), err)
	}
	for _, o := range batch {
		if o.flushed != nil {
			close(o.flushed)
		}
	}
}

func writeObservation(root *bolt.Bucket, o observation) error {
	b, err := root.CreateBucketIfNotExists([]byte(o.infoHash.String()))
	if err != nil {
		return err
	}
	now := []byte(o.at.UTC().Format(time.RFC3339))
	if b.Get(Keys.FirstSeen) == nil {
		if err = b.Put(Keys.FirstSeen, now); err != nil {
			return err
		}
	}
	if err = b.Put(Keys.LastSeen, now); err != nil {
		return err
	}
	return o.fn(b)
}

func (s *Store) GetPeersQuery(infoHash nodeid.ID, from netip.AddrPort) {
	if s.observed(infoHash, "q", from) {
		return
	}
	s.write(infoHash, func(b *bolt.Bucket) error {
		return incr(b, Keys.GetPeers)
	})
}

func (s *Store) AnnouncePeerQuery(infoHash nodeid.ID, peer netip.AddrPort) {
	if s.observed(infoHash, SourceAnnounce, peer) {
		return
	}
	s.write(infoHash, func(b *bolt.Bucket) error {
		added, err := putPeer(b, peer, SourceAnnounce)
		if err != nil || !added {
			return err
		}
		return incr(b, Keys.Announces)
	})
}

func (s *Store) PeerValues(infoHash nodeid.ID, peers []netip.AddrPort) {
	fresh := peers[:0:0]
	for _, p := range peers {
		if !s.observed(infoHash, SourceValues, p) {
			fresh = append(fresh, p)
		}
	}
	if len(fresh) == 0 {
		return
	}
	s.write(infoHash, func(b *bolt.Bucket) error {
		for _, p := range fresh {
			if _, err := putPeer(b, p, SourceValues); err != nil {
				return err
			}
		}
		return nil
	})
}

// TargetFound is not stored, targets are node ids and not info hashes.
func (s *Store) TargetFound(target nodeid.ID, addr netip.AddrPort) {}

// observed returns true if the same observation has been recorded recently.
func (s *Store) observed(infoHash nodeid.ID, kind string, addr netip.AddrPort) bool {
	key := infoHash.Bytes() + kind + addr.String()
	ok, _ := s.seen.ContainsOrAdd(key, struct{}{})
	return ok
}

// write queues fn to run on the bucket of the info hash. It never blocks.
func (s *Store) write(infoHash nodeid.ID, fn func(b *bolt.Bucket) error) {
	select {
	case s.queue <- observation{infoHash: infoHash, at: s.nowFn(), fn: fn}:
	default:
		if s.dropped.Add(1) == 1 {
			s.log.Warningln("harvest queue is full, dropping observations")
		}
	}
}

func incr(b *bolt.Bucket, key []byte) error {
	n, _ := strconv.Atoi(string(b.Get(key)))
	return b.Put(key, []byte(strconv.Itoa(n+1)))
}

func putPeer(b *bolt.Bucket, peer netip.AddrPort, source string) (bool, error) {
	pb, err := b.CreateBucketIfNotExists(Keys.Peers)
	if err != nil {
		return false, err
	}
	key := []byte(peer.String())
	if pb.Get(key) != nil {
		return false, nil
	}
	return true, pb.Put(key, []byte(source))
}

// Len returns the number of info hashes in the database.
func (s *Store) Len() (int, error) {
	var n int
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(infoHashesBucket).ForEach(func(_, _ []byte) error {
			n++
			return nil
		})
	})
	return n, err
}

// Get returns the record of an info hash.
func (s *Store) Get(infoHash nodeid.ID) (*Record, error) {
	var r *Record
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(infoHashesBucket).Bucket([]byte(infoHash.String()))
		if b == nil {
			return nil
		}
		var err error
		r, err = readRecord(infoHash, b)
		return err
	})
	return r, err
}

// Records returns all records in the database ordered by info hash.
func (s *Store) Records() ([]Record, error) {
	var ret []Record
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(infoHashesBucket).ForEach(func(k, _ []byte) error {
			ih, err := nodeid.FromHex(string(k))
			if err != nil {
				return err
			}
			r, err := readRecord(ih, tx.Bucket(infoHashesBucket).Bucket(k))
			if err != nil {
				return err
			}
			ret = append(ret, *r)
			return nil
		})
	})
	return ret, err
}

func readRecord(infoHash nodeid.ID, b *bolt.Bucket) (*Record, error) {
	r := &Record{InfoHash: infoHash, Peers: make(map[netip.AddrPort]string)}
	var err error
	r.FirstSeen, err = time.Parse(time.RFC3339, string(b.Get(Keys.FirstSeen)))
	if err != nil {
		return nil, err
	}
	r.LastSeen, err = time.Parse(time.RFC3339, string(b.Get(Keys.LastSeen)))
	if err != nil {
		return nil, err
	}
	r.GetPeers, _ = strconv.Atoi(string(b.Get(Keys.GetPeers)))
	r.Announces, _ = strconv.Atoi(string(b.Get(Keys.Announces)))
	if pb := b.Bucket(Keys.Peers); pb != nil {
		err = pb.ForEach(func(k, v []byte) error {
			addr, err := netip.ParseAddrPort(string(k))
			if err != nil {
				return err
			}
			r.Peers[addr] = string(v)
			return nil
		})
	}
	return r, err
}

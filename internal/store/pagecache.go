package store

import (
	"container/list"
	"fmt"
	"io"
	"os"
)

// pageSize matches the page granularity the engine buffers reads at.
const pageSize = 4096

type pageKey struct {
	stream string
	page   int64
}

type pageEntry struct {
	key  pageKey
	data []byte
}

// pageCache is a bounded LRU of data-file pages, scoped to one session.
// Sessions are single-threaded, so no locking is needed.
type pageCache struct {
	maxPages int
	pages    map[pageKey]*list.Element
	lru      *list.List
}

func newPageCache(capacityBytes int64) *pageCache {
	maxPages := int(capacityBytes / pageSize)
	if maxPages < 1 {
		maxPages = 1
	}
	return &pageCache{
		maxPages: maxPages,
		pages:    make(map[pageKey]*list.Element),
		lru:      list.New(),
	}
}

// read copies len(dst) bytes at off from the stream's data file into
// dst, going through cached pages. Reads past the end of the file see
// zero bytes: a published slot whose storage has not been written yet
// reads as the fill sentinel. A nil file behaves as all-zero storage.
func (c *pageCache) read(f *os.File, stream string, off int64, dst []byte) error {
	for len(dst) > 0 {
		page := off / pageSize
		pageOff := int(off % pageSize)

		data, err := c.page(f, stream, page)
		if err != nil {
			return err
		}

		n := copy(dst, data[pageOff:])
		dst = dst[n:]
		off += int64(n)
	}
	return nil
}

func (c *pageCache) page(f *os.File, stream string, page int64) ([]byte, error) {
	key := pageKey{stream: stream, page: page}
	if el, ok := c.pages[key]; ok {
		c.lru.MoveToFront(el)
		return el.Value.(*pageEntry).data, nil
	}

	data := make([]byte, pageSize)
	if f != nil {
		n, err := f.ReadAt(data, page*pageSize)
		if err != nil && err != io.EOF {
			return nil, fmt.Errorf("reading page %d of %q: %w", page, stream, err)
		}
		for i := n; i < pageSize; i++ {
			data[i] = 0
		}
	}

	el := c.lru.PushFront(&pageEntry{key: key, data: data})
	c.pages[key] = el
	if c.lru.Len() > c.maxPages {
		oldest := c.lru.Back()
		c.lru.Remove(oldest)
		delete(c.pages, oldest.Value.(*pageEntry).key)
	}
	return data, nil
}

package resource

import (
	"context"
	"errors"
	"fmt"
	"io"
	"slices"

	"github.com/sirupsen/logrus"
	"github.com/sourcegraph/conc/pool"
	"golang.org/x/sync/singleflight"

	"github.com/Embers-of-the-Fire/EVE-MultiTools/internal/cache"
	"github.com/Embers-of-the-Fire/EVE-MultiTools/internal/schema"
)

// Cache 把只读索引树与 Fetcher 组合成按标识符访问资源的入口，可被并发调用。
type Cache struct {
	tree    *Tree
	fetcher *Fetcher
	format  URLFormatter
	logger  *logrus.Logger

	flights singleflight.Group
}

// NewCache 构造资源缓存；logger 为空时使用 logrus 全局实例。
func NewCache(tree *Tree, fetcher *Fetcher, format URLFormatter, logger *logrus.Logger) *Cache {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Cache{tree: tree, fetcher: fetcher, format: format, logger: logger}
}

// Tree 返回底层索引树。
func (c *Cache) Tree() *Tree {
	return c.tree
}

// Resolve 返回标识符对应的节点。
func (c *Cache) Resolve(id string) (Node, error) {
	n, ok := c.tree.Resolve(id)
	if !ok {
		return Node{}, newError(KindNotFound, id, nil)
	}
	return n, nil
}

// GetLeaf 只做解析，不访问网络。
func (c *Cache) GetLeaf(id string) (*Leaf, error) {
	n, err := c.Resolve(id)
	if err != nil {
		return nil, err
	}
	leaf, ok := n.Leaf()
	if !ok {
		return nil, newError(KindTypeMismatch, id, fmt.Errorf("expected leaf, found %s", n.Kind()))
	}
	return leaf, nil
}

// Download 解析并下载单个叶子。
func (c *Cache) Download(ctx context.Context, id string) (*Leaf, error) {
	leaf, err := c.GetLeaf(id)
	if err != nil {
		return nil, err
	}
	return c.fetch(ctx, leaf)
}

// DownloadAll 下载 id 下的全部叶子，任意一个失败则整体失败并返回该叶子的错误。
func (c *Cache) DownloadAll(ctx context.Context, id string) ([]*Leaf, error) {
	n, err := c.Resolve(id)
	if err != nil {
		return nil, err
	}
	if leaf, ok := n.Leaf(); ok {
		fetched, err := c.fetch(ctx, leaf)
		if err != nil {
			return nil, err
		}
		return []*Leaf{fetched}, nil
	}

	leaves := slices.Collect(ListLeaves(n))
	c.logger.WithFields(logrus.Fields{
		"action": "download_all",
		"res_id": id,
		"leaves": len(leaves),
	}).Debug("fan_out")

	results := make([]*Leaf, len(leaves))
	p := pool.New().WithContext(ctx).WithCancelOnError().WithFirstError()
	for i, leaf := range leaves {
		p.Go(func(ctx context.Context) error {
			fetched, err := c.fetch(ctx, leaf)
			if err != nil {
				return err
			}
			results[i] = fetched
			return nil
		})
	}
	if err := p.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// List 返回 id 下的全部叶子；download 为 true 时等价于 DownloadAll。
func (c *Cache) List(ctx context.Context, id string, download bool) ([]*Leaf, error) {
	if download {
		return c.DownloadAll(ctx, id)
	}
	n, err := c.Resolve(id)
	if err != nil {
		return nil, err
	}
	return slices.Collect(ListLeaves(n)), nil
}

// Open 下载叶子并打开本地副本，调用方负责关闭 Reader。
func (c *Cache) Open(ctx context.Context, id string) (*Leaf, *cache.ReadResult, error) {
	leaf, err := c.Download(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	result, err := c.fetcher.Store().Open(ctx, leaf.LocalPath)
	if err != nil {
		return nil, nil, fmt.Errorf("open %s: %w", id, err)
	}
	return leaf, result, nil
}

// ReadAll 下载叶子并读出完整内容。
func (c *Cache) ReadAll(ctx context.Context, id string) ([]byte, error) {
	_, result, err := c.Open(ctx, id)
	if err != nil {
		return nil, err
	}
	defer result.Reader.Close()
	return io.ReadAll(result.Reader)
}

// Decode 下载 schema 与二进制数据并解码；解码失败归类为 KindDecode。
func (c *Cache) Decode(ctx context.Context, schemaID, binaryID string) (any, error) {
	schemaData, err := c.ReadAll(ctx, schemaID)
	if err != nil {
		return nil, err
	}
	payload, err := c.ReadAll(ctx, binaryID)
	if err != nil {
		return nil, err
	}

	s, err := schema.Parse(schemaData)
	if err != nil {
		return nil, newError(KindDecode, schemaID, err)
	}
	value, err := s.Decode(payload)
	if err != nil {
		return nil, newError(KindDecode, binaryID, err)
	}
	return value, nil
}

// fetch 对同一标识符的并发请求只发起一次下载。下载本身不随单个调用方取消，
// 每个调用方只在自己的 ctx 上等待。ctx 已取消时不发起新的下载。
func (c *Cache) fetch(ctx context.Context, leaf *Leaf) (*Leaf, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	ch := c.flights.DoChan(leaf.ResID, func() (any, error) {
		return c.fetcher.Fetch(context.WithoutCancel(ctx), leaf, c.format)
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		fetched, ok := res.Val.(*Leaf)
		if !ok {
			return nil, errors.New("unexpected flight result")
		}
		return fetched, nil
	}
}

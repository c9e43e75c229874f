package cache

import "fmt"

// 键语义：
// - metaKey(docID):  文档元数据（Hash<key -> lww.Update JSON>），在线成员也在这里，field 为 presence:<userId>
// - docsKey():       写过元数据的文档索引（Set<docID>）
//
// {docID:...} 是 hash tag，集群模式下同一文档的键落在同一个 slot

const (
	keyMetaFmt = "meta:{docID:%s}"
	keyDocsSet = "meta:docs"
)

func metaKey(docID string) string { return fmt.Sprintf(keyMetaFmt, docID) }
func docsKey() string             { return keyDocsSet }

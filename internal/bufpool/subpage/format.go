package subpage

import "fmt"

func notInUseString(memoryMapIdx uint32) string {
	return fmt.Sprintf("(%d: not in use)", memoryMapIdx)
}

func activeString(memoryMapIdx, used, max uint32, offset, length int64, elemSize uint32) string {
	return fmt.Sprintf("(%d: %d/%d, offset: %d, length: %d, elemSize: %d)",
		memoryMapIdx, used, max, offset, length, elemSize)
}

package execution

import (
	"fmt"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/common"
)

var signerNonceLocks sync.Map

// acquireSignerNonceLock serializes build-and-broadcast for one account on one
// chain within this process. The returned func releases the lock.
func acquireSignerNonceLock(chainID int64, addr common.Address) func() {
	key := fmt.Sprintf("%d:%s", chainID, strings.ToLower(addr.Hex()))
	v, _ := signerNonceLocks.LoadOrStore(key, &sync.Mutex{})
	mu := v.(*sync.Mutex)
	mu.Lock()
	return mu.Unlock
}

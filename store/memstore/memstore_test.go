package memstore_test

import (
	"testing"

	"github.com/jrsteele09/dentalization-auth/store/memstore"
	"github.com/jrsteele09/dentalization-auth/store/storetest"
)

func TestMemStore(t *testing.T) {
	storetest.Run(t, memstore.New())
}

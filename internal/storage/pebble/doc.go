// Package pebblestore wraps the pebble engine that stores channel logs. It
// maps the configured fsync mode onto pebble write options and counts
// commits and reads for the lognode.
//
//	db, err := pebblestore.Open(pebblestore.Options{DataDir: "./data", Fsync: pebblestore.FsyncModeInterval})
//	if err != nil {
//		return err
//	}
//	defer db.Close()
//	err = db.Update(ctx, func(b *pebble.Batch) error {
//		return b.Set([]byte("k"), []byte("v"), nil)
//	})
package pebblestore

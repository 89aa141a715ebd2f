package fat

import (
	"strings"

	"github.com/theanurin/emphatic-fs/checkpoint"
)

// rootSlot is the synthetic directory entry standing in for the volume
// root, which has no slot of its own on disk (§4.7). Its cluster is the
// boot sector's RootCluster; everything else about it is fabricated.
func rootSlot(v *Volume) slot {
	var e DirEntry
	e.Attr = AttrDir
	e.SetCluster(v.RootCluster())
	return slot{DirEntry: e}
}

// resolved is the result of walking a path: the slot for the final
// component, the chain of its parent directory (needed for append/remove),
// and the parent's own starting cluster (0 when the parent is the volume
// root).
type resolved struct {
	entry          slot
	parentChain    *clusterChain
	parentCluster  uint32
	name           string // original (non-8.3) leaf component, as requested
}

// resolve walks path, a slash-separated sequence of components rooted at
// the volume root, one directory scan per component (§4.7: "repeated
// directory scan," no name cache). "" and "/" both resolve to the root.
func resolve(v *Volume, fc *fatCache, dir *directory, path string) (resolved, error) {
	path = strings.Trim(path, "/")

	root := rootSlot(v)
	if path == "" {
		rootChain, err := buildChain(fc, v.RootCluster())
		if err != nil {
			return resolved{}, err
		}
		return resolved{entry: root, parentChain: rootChain, parentCluster: 0, name: "/"}, nil
	}

	components := strings.Split(path, "/")

	currentChain, err := buildChain(fc, v.RootCluster())
	if err != nil {
		return resolved{}, err
	}
	currentCluster := uint32(0) // synthetic identity for the root

	for i, comp := range components {
		raw, err := nameToShort(comp)
		if err != nil {
			return resolved{}, checkpoint.Wrap(err, ErrInvalidArgument)
		}

		found, ok, err := dir.find(currentChain, raw)
		if err != nil {
			return resolved{}, err
		}
		if !ok {
			return resolved{}, checkpoint.Wrap(ErrNoSuchEntry, ErrNoSuchEntry)
		}

		last := i == len(components)-1
		if last {
			return resolved{
				entry:         found,
				parentChain:   currentChain,
				parentCluster: currentCluster,
				name:          comp,
			}, nil
		}

		if !found.IsDir() {
			return resolved{}, checkpoint.Wrap(ErrNotADirectory, ErrNotADirectory)
		}

		currentCluster = found.Cluster()
		currentChain, err = buildChain(fc, currentCluster)
		if err != nil {
			return resolved{}, err
		}
	}

	return resolved{}, checkpoint.Wrap(ErrNoSuchEntry, ErrNoSuchEntry)
}

// resolveParent walks all but the last component of path, returning the
// parent directory's chain/cluster and the final component as given (not
// yet converted to a short name), for operations (mknod, mkdir) that create a new slot rather
// than looking one up.
func resolveParent(v *Volume, fc *fatCache, dir *directory, path string) (parentChain *clusterChain, parentCluster uint32, leaf string, err error) {
	path = strings.Trim(path, "/")
	if path == "" {
		return nil, 0, "", checkpoint.Wrap(ErrExists, ErrExists)
	}

	components := strings.Split(path, "/")
	leaf = components[len(components)-1]

	currentChain, err := buildChain(fc, v.RootCluster())
	if err != nil {
		return nil, 0, "", err
	}
	currentCluster := uint32(0)

	for _, comp := range components[:len(components)-1] {
		raw, err := nameToShort(comp)
		if err != nil {
			return nil, 0, "", checkpoint.Wrap(err, ErrInvalidArgument)
		}
		found, ok, err := dir.find(currentChain, raw)
		if err != nil {
			return nil, 0, "", err
		}
		if !ok {
			return nil, 0, "", checkpoint.Wrap(ErrNoSuchEntry, ErrNoSuchEntry)
		}
		if !found.IsDir() {
			return nil, 0, "", checkpoint.Wrap(ErrNotADirectory, ErrNotADirectory)
		}
		currentCluster = found.Cluster()
		currentChain, err = buildChain(fc, currentCluster)
		if err != nil {
			return nil, 0, "", err
		}
	}

	return currentChain, currentCluster, leaf, nil
}

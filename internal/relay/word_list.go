package relay

import (
	"crypto/rand"
	"math/big"
	"strings"
)

var colors = []string{
	"amber", "azure", "coral", "crimson", "cyan", "ebony", "emerald", "golden", "indigo", "ivory",
	"jade", "lilac", "magenta", "maroon", "olive", "peach", "plum", "rose", "ruby", "saffron",
	"scarlet", "silver", "teal", "topaz", "umber", "violet",
}

var creatures = []string{
	"badger", "beaver", "bison", "falcon", "ferret", "gecko", "heron", "ibis", "koala", "lemur",
	"lynx", "marmot", "narwhal", "ocelot", "otter", "panda", "puffin", "quokka", "raven", "salmon",
	"tapir", "toucan", "walrus", "wombat", "yak", "zebra",
}

var objects = []string{
	"anchor", "banjo", "candle", "compass", "easel", "feather", "harbor", "kettle", "lantern", "marble",
	"meadow", "notebook", "orchard", "palette", "pencil", "quill", "ribbon", "sketch", "teapot", "violin",
	"whistle", "window",
}

var wordLists = [][]string{colors, creatures, objects}

// generateRoomID returns a memorable id such as "teal-otter-lantern" that
// is not currently in use.
func (h *Hub) generateRoomID() string {
	for {
		words := make([]string, len(wordLists))
		for i, list := range wordLists {
			words[i] = list[randomIndex(len(list))]
		}
		id := strings.Join(words, "-")
		if _, ok := h.Rooms[id]; !ok {
			return id
		}
	}
}

// randomIndex returns a cryptographically secure random index for a slice of given length.
func randomIndex(max int) int {
	n, err := rand.Int(rand.Reader, big.NewInt(int64(max)))
	if err != nil {
		panic("relay: failed to generate random index: " + err.Error())
	}
	return int(n.Int64())
}

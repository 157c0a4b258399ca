// Package server exposes a database over HTTP.
package server

import (
	"errors"
	"strconv"

	"github.com/gofiber/fiber/v2"

	"pagedb"
)

// Store is the part of *pagedb.DB the routes use.
type Store interface {
	Insert(r pagedb.Record) (pagedb.Location, error)
	Search(key pagedb.Key) (pagedb.Record, error)
	Replace(key pagedb.Key, r pagedb.Record) error
	Delete(key pagedb.Key) (pagedb.Location, error)
	Block(n int32) ([]pagedb.Record, error)
	Dump() ([]pagedb.NodeInfo, error)
	Height() (int, error)
	Stats() pagedb.Stats
	ResetStats()
	Info() pagedb.Info
}

// Record is the JSON form of a record.
type Record struct {
	First  int32 `json:"first"`
	Second int32 `json:"second"`
	Third  int32 `json:"third"`
	Key    int32 `json:"key"`
}

func toJSON(r pagedb.Record) Record {
	return Record{First: r.First, Second: r.Second, Third: r.Third, Key: int32(r.Key)}
}

// New returns an app serving db.
func New(db Store, log pagedb.Logger) *fiber.App {
	if log == nil {
		log = pagedb.DiscardLogger{}
	}
	app := fiber.New(fiber.Config{
		AppName:               "pagedb",
		DisableStartupMessage: true,
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			code := fiber.StatusInternalServerError
			var fe *fiber.Error
			if errors.As(err, &fe) {
				code = fe.Code
			}
			if code >= fiber.StatusInternalServerError {
				log.Error("request failed", "method", c.Method(), "path", c.Path(), "error", err)
			}
			return c.Status(code).JSON(fiber.Map{"error": err.Error()})
		},
	})
	SetupRoutes(app, db)
	return app
}

// status maps database errors to HTTP errors.
func status(err error) error {
	switch {
	case errors.Is(err, pagedb.ErrKeyNotFound), errors.Is(err, pagedb.ErrRecordNotFound):
		return fiber.NewError(fiber.StatusNotFound, err.Error())
	case errors.Is(err, pagedb.ErrDuplicateKey):
		return fiber.NewError(fiber.StatusConflict, err.Error())
	case errors.Is(err, pagedb.ErrKeyMismatch), errors.Is(err, pagedb.ErrInvalidRecord):
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	default:
		return err
	}
}

func keyParam(c *fiber.Ctx) (pagedb.Key, error) {
	v, err := strconv.ParseInt(c.Params("key"), 10, 32)
	if err != nil {
		return 0, fiber.NewError(fiber.StatusBadRequest, "key must be a 32-bit integer")
	}
	return pagedb.Key(v), nil
}

func SetupRoutes(router fiber.Router, db Store) {
	router.Get("/", func(c *fiber.Ctx) error {
		info := db.Info()
		height, err := db.Height()
		if err != nil {
			return err
		}
		return c.JSON(fiber.Map{
			"id":           info.ID.String(),
			"degree":       info.Degree,
			"root":         info.Root,
			"height":       height,
			"nextLocation": info.NextLocation,
		})
	})

	router.Get("/records/:key", func(c *fiber.Ctx) error {
		key, err := keyParam(c)
		if err != nil {
			return err
		}
		r, err := db.Search(key)
		if err != nil {
			return status(err)
		}
		return c.JSON(toJSON(r))
	})

	router.Post("/records", func(c *fiber.Ctx) error {
		var body Record
		if err := c.BodyParser(&body); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid json")
		}
		loc, err := db.Insert(pagedb.Record{First: body.First, Second: body.Second, Third: body.Third, Key: pagedb.Key(body.Key)})
		if err != nil {
			return status(err)
		}
		return c.Status(fiber.StatusCreated).JSON(fiber.Map{"location": loc})
	})

	router.Put("/records/:key", func(c *fiber.Ctx) error {
		key, err := keyParam(c)
		if err != nil {
			return err
		}
		var body struct {
			First  int32  `json:"first"`
			Second int32  `json:"second"`
			Third  int32  `json:"third"`
			Key    *int32 `json:"key"`
		}
		if err := c.BodyParser(&body); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid json")
		}
		r := pagedb.Record{First: body.First, Second: body.Second, Third: body.Third, Key: key}
		if body.Key != nil {
			r.Key = pagedb.Key(*body.Key)
		}
		if err := db.Replace(key, r); err != nil {
			return status(err)
		}
		return c.JSON(toJSON(r))
	})

	router.Delete("/records/:key", func(c *fiber.Ctx) error {
		key, err := keyParam(c)
		if err != nil {
			return err
		}
		loc, err := db.Delete(key)
		if err != nil {
			return status(err)
		}
		return c.JSON(fiber.Map{"location": loc})
	})

	router.Get("/blocks/:n", func(c *fiber.Ctx) error {
		v, err := strconv.ParseInt(c.Params("n"), 10, 32)
		if err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "block must be a 32-bit integer")
		}
		n := int32(v)
		slots, err := db.Block(n)
		if err != nil {
			return status(err)
		}

		first := pagedb.Location(n) * pagedb.RecordsPerBlock
		out := make([]fiber.Map, 0, len(slots))
		for i, r := range slots {
			slot := fiber.Map{"location": first + pagedb.Location(i), "deleted": r.IsTombstone()}
			if !r.IsTombstone() {
				slot["record"] = toJSON(r)
			}
			out = append(out, slot)
		}
		return c.JSON(fiber.Map{"block": n, "slots": out})
	})

	router.Get("/tree", func(c *fiber.Ctx) error {
		nodes, err := db.Dump()
		if err != nil {
			return err
		}
		out := make([]fiber.Map, 0, len(nodes))
		for _, n := range nodes {
			out = append(out, fiber.Map{
				"id":        n.ID,
				"parent":    n.Parent,
				"depth":     n.Depth,
				"keys":      n.Keys,
				"locations": n.Locations,
				"children":  n.Children,
			})
		}
		return c.JSON(fiber.Map{"nodes": out})
	})

	router.Get("/stats", func(c *fiber.Ctx) error {
		return c.JSON(statsJSON(db.Stats()))
	})

	router.Delete("/stats", func(c *fiber.Ctx) error {
		db.ResetStats()
		return c.JSON(statsJSON(db.Stats()))
	})
}

func statsJSON(s pagedb.Stats) fiber.Map {
	return fiber.Map{
		"recordReads":     s.RecordReads,
		"recordWrites":    s.RecordWrites,
		"nodeReads":       s.NodeReads,
		"nodeWrites":      s.NodeWrites,
		"pageCacheHits":   s.PageCacheHits,
		"nodeCacheHits":   s.NodeCacheHits,
		"nodeCacheMisses": s.NodeCacheMisses,
	}
}

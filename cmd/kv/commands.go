package kv

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"
)

var (
	setCmd = &cobra.Command{
		Use:   "set [key] [value]",
		Short: "Sets the value for a key",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := store.Set(args[0], args[1]); err != nil {
				return err
			}
			fmt.Println("set successfully")
			return nil
		},
	}
	setexCmd = &cobra.Command{
		Use:   "setex [key] [value] [ttlSeconds]",
		Short: "Sets the value for a key with an expiration time",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			ttl, err := strconv.ParseInt(args[2], 10, 64)
			if err != nil {
				return fmt.Errorf("ttlSeconds must be a number: %w", err)
			}
			if err := store.SetEx(args[0], args[1], time.Duration(ttl)*time.Second); err != nil {
				return err
			}
			fmt.Println("setex successfully")
			return nil
		},
	}
	setnxCmd = &cobra.Command{
		Use:   "setnx [key] [value]",
		Short: "Sets the value only if the key does not exist",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ok, err := store.SetNX(args[0], args[1], 0)
			if err != nil {
				return err
			}
			fmt.Printf("set=%t\n", ok)
			return nil
		},
	}
	getCmd = &cobra.Command{
		Use:   "get [key]",
		Short: "Reads the value for a key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			value, err := store.Get(args[0])
			if err != nil {
				return err
			}
			fmt.Println(value)
			return nil
		},
	}
	delCmd = &cobra.Command{
		Use:   "del [key]",
		Short: "Deletes a key value pair",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := store.Del(args[0]); err != nil {
				return err
			}
			fmt.Println("delete successfully")
			return nil
		},
	}
	existsCmd = &cobra.Command{
		Use:   "exists [key]",
		Short: "Checks if a key exists",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Printf("key=%s, found=%t\n", args[0], store.Exists(args[0]))
			return nil
		},
	}
	expireCmd = &cobra.Command{
		Use:   "expire [key] [ttlSeconds]",
		Short: "Sets or replaces the expiration of a key",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ttl, err := strconv.ParseInt(args[1], 10, 64)
			if err != nil {
				return fmt.Errorf("ttlSeconds must be a number: %w", err)
			}
			if err := store.Expire(args[0], time.Duration(ttl)*time.Second); err != nil {
				return err
			}
			fmt.Println("expire successfully")
			return nil
		},
	}
	persistCmd = &cobra.Command{
		Use:   "persist [key]",
		Short: "Clears the expiration of a key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := store.Persist(args[0]); err != nil {
				return err
			}
			fmt.Println("persist successfully")
			return nil
		},
	}
	ttlCmd = &cobra.Command{
		Use:   "ttl [key]",
		Short: "Shows the remaining time to live of a key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Printf("ttl=%ds, pttl=%dms\n", store.TTL(args[0]), store.PTTL(args[0]))
			return nil
		},
	}
	appendCmd = &cobra.Command{
		Use:   "append [key] [value]",
		Short: "Appends a value onto the stored string",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			length, err := store.Append(args[0], args[1])
			if err != nil {
				return err
			}
			fmt.Printf("length=%d\n", length)
			return nil
		},
	}
	incrCmd = &cobra.Command{
		Use:   "incr [key]",
		Short: "Increments the integer value of a key by one",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			value, err := store.Incr(args[0])
			if err != nil {
				return err
			}
			fmt.Println(value)
			return nil
		},
	}
	decrCmd = &cobra.Command{
		Use:   "decr [key]",
		Short: "Decrements the integer value of a key by one",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			value, err := store.Decr(args[0])
			if err != nil {
				return err
			}
			fmt.Println(value)
			return nil
		},
	}
	getsetCmd = &cobra.Command{
		Use:   "getset [key] [value]",
		Short: "Installs a new value and prints the prior one",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			prior, err := store.GetSet(args[0], args[1])
			if err != nil {
				return err
			}
			fmt.Println(prior)
			return nil
		},
	}
	mgetCmd = &cobra.Command{
		Use:   "mget [key]...",
		Short: "Reads the values of multiple keys",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			for i, value := range store.MGet(args...) {
				if value == nil {
					fmt.Printf("%s=(nil)\n", args[i])
				} else {
					fmt.Printf("%s=%s\n", args[i], *value)
				}
			}
			return nil
		},
	}
	strlenCmd = &cobra.Command{
		Use:   "strlen [key]",
		Short: "Shows the length of the stored value",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Printf("length=%d\n", store.Strlen(args[0]))
			return nil
		},
	}
	getrangeCmd = &cobra.Command{
		Use:   "getrange [key] [start] [end]",
		Short: "Reads a substring of the stored value",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			start, err := strconv.Atoi(args[1])
			if err != nil {
				return fmt.Errorf("start must be a number: %w", err)
			}
			end, err := strconv.Atoi(args[2])
			if err != nil {
				return fmt.Errorf("end must be a number: %w", err)
			}
			fmt.Println(store.GetRange(args[0], start, end))
			return nil
		},
	}
	setrangeCmd = &cobra.Command{
		Use:   "setrange [key] [offset] [value]",
		Short: "Overwrites part of the stored value at an offset",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			offset, err := strconv.Atoi(args[1])
			if err != nil {
				return fmt.Errorf("offset must be a number: %w", err)
			}
			length, err := store.SetRange(args[0], offset, args[2])
			if err != nil {
				return err
			}
			fmt.Printf("length=%d\n", length)
			return nil
		},
	}
	randomkeyCmd = &cobra.Command{
		Use:   "randomkey",
		Short: "Prints an arbitrary existing key",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			key, ok := store.RandomKey()
			if !ok {
				fmt.Println("(empty store)")
				return nil
			}
			fmt.Println(key)
			return nil
		},
	}
	dumpCmd = &cobra.Command{
		Use:   "dump [key]",
		Short: "Shows the stored record with its expiration",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rec, err := store.Dump(args[0])
			if err != nil {
				return err
			}
			if rec.ExpireAt == 0 {
				fmt.Printf("value=%s, expires=never\n", rec.Value)
			} else {
				fmt.Printf("value=%s, expires=%s\n", rec.Value, time.UnixMilli(rec.ExpireAt).Format(time.RFC3339))
			}
			return nil
		},
	}
	saveCmd = &cobra.Command{
		Use:   "save",
		Short: "Writes a snapshot synchronously",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := store.Save(); err != nil {
				return err
			}
			fmt.Println("saved successfully")
			return nil
		},
	}
	rewriteCmd = &cobra.Command{
		Use:   "rewrite",
		Short: "Compacts the journal to one entry per live key",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store.BgRewriteAOF()
			// give the background rewrite a moment before PostRun closes
			// the store
			time.Sleep(200 * time.Millisecond)
			fmt.Println("rewrite triggered")
			return nil
		},
	}
)

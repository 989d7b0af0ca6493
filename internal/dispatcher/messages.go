package dispatcher

import (
	"fmt"
	"strings"

	"github.com/maximcoj/teleblog/internal/blog"
)

// Reply texts. Kept together so handlers read as transitions.
const (
	msgWelcome = `Welcome to TeleBlog!

I will help you run a personal blog straight from Telegram.

Commands:
/create - create your blog
/posts - manage your posts
/help - show help

Start with /create.`

	msgHelp = `Commands:

/create - create your blog
/posts - list and manage your posts
/newpost - write a new post
/edit <n> - edit post number n
/delete <n> - delete post number n
/deleteblog - delete your blog
/help - show this help

Just send a message to publish a new post.`

	msgGuidance          = "Use /create to create a blog or /posts to manage your posts."
	msgAlreadyHaveBlog   = "You already have a blog! Use /posts to manage your posts."
	msgAskBlogName       = "Enter a name for your blog:"
	msgInvalidBlogName   = "The name must contain Latin letters or digits. Try another name:"
	msgBlogNameTaken     = "A blog with this name already exists. Try another name:"
	msgAskDescription    = `Great! Now enter a description for your blog (or send "-" to skip):`
	msgNoBlog            = "You do not have a blog yet. Use /create to create one."
	msgNoBlogToDelete    = "You have no blog to delete. Use /create to create one."
	msgBlogNotFound      = "Blog not found. Use /create to create a new blog."
	msgNoPostsYet        = "Your blog has no posts yet. Send a message to create the first one!"
	msgNewPostPrompt     = "Send a message (text or photo with caption) to publish a new post."
	msgEditUsage         = "Usage: /edit <post_number>"
	msgDeleteUsage       = "Usage: /delete <post_number>"
	msgPostNotFound      = "Post not found. Use /posts to see the list of posts."
	msgPostCreated       = "Post published to your blog!"
	msgPostWithImage     = "Post with image published to your blog!"
	msgPostUpdated       = "Post updated!"
	msgPostUpdatedImage  = "Post with image updated!"
	msgPostDeleted       = "Post deleted!"
	msgUseButtons        = "Please confirm or cancel the blog deletion with the buttons above."
	msgActionUnavailable = "Action unavailable"
	msgDeletionCancelled = "Blog deletion cancelled."
	msgDeleteBlogFailed  = "Could not delete the blog. Please try again."
	msgTryAgain          = "Something went wrong. Please try again."
	msgUnknownCommand    = "Unknown command. Use /help to see the list of commands."
	msgAdminOnly         = "This command is only available to the administrator."

	btnCancelDeletion  = "❌ No, cancel"
	btnConfirmDeletion = "✅ Yes, delete my blog"
)

const listDateLayout = "02.01.2006"

func msgBlogCreated(b *blog.Blog) string {
	return fmt.Sprintf("Blog %q created!\n\nYour blog is available at: %s\n\nNow send messages to create posts!", b.Name, b.URL)
}

func msgEditing(title string) string {
	return fmt.Sprintf("Editing post %q. Send the new content:", title)
}

func msgConfirmDeletion(name string) string {
	return fmt.Sprintf("WARNING! You are about to delete the blog %q.\n\n"+
		"This will:\n"+
		"• delete ALL posts of the blog\n"+
		"• delete the blog itself\n"+
		"• it cannot be undone\n\n"+
		"Are you sure?", name)
}

func msgBlogDeleted(name string) string {
	return fmt.Sprintf("Blog %q was deleted together with all its posts.\n\nYou can create a new one with /create.", name)
}

func msgStats(s blog.Stats, backend string) string {
	return fmt.Sprintf("Blogs: %d\nPosts: %d\nStorage: %s", s.Blogs, s.Posts, backend)
}

func formatPostList(posts []blog.Post) string {
	var b strings.Builder
	b.WriteString("Your posts:\n\n")
	for i, p := range posts {
		title := p.Title
		if title == "" {
			title = blog.DefaultTitle
		}
		fmt.Fprintf(&b, "%d. %s (%s)\n", i+1, title, p.CreatedAt.Format(listDateLayout))
	}
	b.WriteString("\nSend a message to create a new post, or use:\n")
	b.WriteString("/edit <n> - edit a post\n")
	b.WriteString("/delete <n> - delete a post")
	return b.String()
}
